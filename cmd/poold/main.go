// Command poold runs the exchange pool daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/tolelom/cookiepool/config"
	"github.com/tolelom/cookiepool/crypto"
	"github.com/tolelom/cookiepool/crypto/certgen"
	"github.com/tolelom/cookiepool/events"
	"github.com/tolelom/cookiepool/exchange"
	"github.com/tolelom/cookiepool/identity"
	"github.com/tolelom/cookiepool/indexer"
	"github.com/tolelom/cookiepool/metrics"
	"github.com/tolelom/cookiepool/rpc"
	"github.com/tolelom/cookiepool/signer"
	"github.com/tolelom/cookiepool/storage"
	"github.com/tolelom/cookiepool/wallet"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "pool.key", "path to the master keystore file")
	genKey := flag.Bool("genkey", false, "generate a new master key and exit")
	genCerts := flag.String("gencerts", "", "generate CA, server and orchestrator TLS certs into the given directory and exit")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	// Read keystore password from environment (not CLI flags, they leak via ps).
	password := os.Getenv("POOLD_PASSWORD")
	if password == "" {
		log.Warn("POOLD_PASSWORD not set, keystore will use an empty password")
	}

	if *genKey {
		priv, pub, err := crypto.GenerateKeyPair()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, priv); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated master key %s\n", pub.Hex())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	if *genCerts != "" {
		host, err := os.Hostname()
		if err != nil {
			host = "poold"
		}
		if err := certgen.GenerateAll(*genCerts, host, "orchestrator", nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for host %q\n", *genCerts, host)
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config %s: %v", *cfgPath, err)
	}
	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, *keyPath, password); err != nil {
		log.Fatal(err)
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, keyPath, password string) error {
	master, err := wallet.LoadKey(keyPath, password)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	params, err := crypto.NetParams(cfg.Network)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "pool"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	state := storage.NewStateDB(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)

	coord := exchange.New(state, signer.NewLocal(master), newResolver(cfg.Identity),
		exchange.WithEmitter(emitter),
		exchange.WithMetrics(m),
		exchange.WithNetwork(params),
		exchange.WithExternalTimeout(cfg.ExternalTimeout()),
	)
	setup, err := cfg.PoolSetup()
	if err != nil {
		return err
	}
	ex, err := coord.Init(setup)
	if err != nil {
		return fmt.Errorf("exchange init: %w", err)
	}
	log.WithFields(log.Fields{
		"rune":    ex.RuneName,
		"rune_id": ex.RuneID,
		"phase":   ex.Status.Phase,
		"address": ex.Address,
		"network": params.Name,
	}).Info("exchange loaded")

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	stream := rpc.NewStream(emitter)
	srv := rpc.NewServer(fmt.Sprintf(":%d", cfg.RPCPort), rpc.NewHandler(coord, idx, m),
		rpc.WithTokens(cfg.RPCTokens),
		rpc.WithMetrics(reg),
		rpc.WithStream(stream),
		rpc.WithTLS(tlsCfg),
	)
	if len(cfg.RPCTokens) == 0 {
		log.Warn("no rpc_tokens configured, every caller is anonymous")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return stream.Run(ctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newResolver(cfg config.IdentityConfig) exchange.IdentityResolver {
	if cfg.URL == "" {
		log.WithField("entries", len(cfg.Static)).Info("using static identity table")
		return identity.NewStatic(cfg.Static)
	}
	opts := []identity.ClientOption{identity.WithMaxRetries(cfg.MaxRetries)}
	if cfg.Token != "" {
		opts = append(opts, identity.WithToken(cfg.Token))
	}
	log.WithField("url", cfg.URL).Info("using identity service")
	return identity.NewClient(cfg.URL, opts...)
}
