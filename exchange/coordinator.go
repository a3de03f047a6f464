// Package exchange coordinates the pool: it admits one intent at a time,
// round-trips the external signer and identity services, commits the
// resulting pool state and drives the game lifecycle.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/events"
	"github.com/tolelom/cookiepool/game"
	"github.com/tolelom/cookiepool/ledger"
	"github.com/tolelom/cookiepool/metrics"
)

// MinimalTxValue is the smallest pool output value in sats the exchange
// will take part in.
const MinimalTxValue uint64 = 10_000

// DefaultExternalTimeout bounds each signer or identity call.
const DefaultExternalTimeout = 30 * time.Second

// Signer derives the pool key and signs pool inputs.
type Signer interface {
	PoolKey(ctx context.Context, derivation []byte) (*btcec.PublicKey, error)
	Sign(ctx context.Context, txHex string, consumed []core.Utxo, derivation []byte) (string, error)
}

// IdentityResolver maps an initiator address to its principal.
type IdentityResolver interface {
	Resolve(ctx context.Context, address string) (string, error)
}

// Setup is the static configuration of a new pool.
type Setup struct {
	RuneName     string
	RuneID       core.CoinID
	Orchestrator string
	Game         core.Game
}

// Coordinator owns the exchange state. mu serializes every mutation;
// admission allows a single intent between validation and commit.
type Coordinator struct {
	mu        sync.RWMutex
	admission atomic.Bool

	state    core.State
	ledger   *ledger.Ledger
	rewards  *game.Rewards
	signer   Signer
	identity IdentityResolver

	params      *chaincfg.Params
	emitter     *events.Emitter
	metrics     *metrics.Metrics
	now         func() time.Time
	timeout     time.Duration
	onViolation func(error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithExternalTimeout bounds each signer and identity call.
func WithExternalTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithEmitter publishes ledger and game events to e.
func WithEmitter(e *events.Emitter) Option {
	return func(c *Coordinator) { c.emitter = e }
}

// WithMetrics records to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithNetwork selects the chain the pool address is encoded for.
func WithNetwork(params *chaincfg.Params) Option {
	return func(c *Coordinator) { c.params = params }
}

// WithViolationHandler is called when a game status transition is
// attempted from the wrong phase. The default handler panics.
func WithViolationHandler(h func(error)) Option {
	return func(c *Coordinator) { c.onViolation = h }
}

// New creates a Coordinator over state.
func New(state core.State, signer Signer, identity IdentityResolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		state:    state,
		signer:   signer,
		identity: identity,
		params:   &chaincfg.MainNetParams,
		now:      time.Now,
		timeout:  DefaultExternalTimeout,
		onViolation: func(err error) {
			log.WithField("component", "exchange").WithError(err).Panic("contract violation")
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.emitter == nil {
		c.emitter = events.NewEmitter()
	}
	if c.metrics == nil {
		c.metrics = metrics.New(prometheus.NewRegistry())
	}
	c.rewards = game.NewRewards(state, c.now)
	c.ledger = ledger.New(state, c.rewards)
	return c
}

// Init stores the exchange record on first start. An existing record is
// returned unchanged so restarts keep their state.
func (c *Coordinator) Init(s Setup) (*core.Exchange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ex, err := c.state.GetExchange()
	if err == nil {
		return ex, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	if s.RuneID.IsBTC() {
		return nil, errors.New("rune id must not be the base asset")
	}
	if s.Orchestrator == "" {
		return nil, errors.New("orchestrator principal required")
	}

	g := s.Game
	g.StartTime = core.NotStarted
	g.ClaimedRewards = 0
	ex = &core.Exchange{
		RuneName:     s.RuneName,
		RuneID:       s.RuneID,
		Orchestrator: s.Orchestrator,
		Status:       core.InitialStatus(),
		Game:         g,
	}
	if err := c.persist(func() error { return c.state.SetExchange(ex) }); err != nil {
		return nil, err
	}
	logger().WithFields(log.Fields{"rune": s.RuneName, "rune_id": s.RuneID}).Info("exchange initialised")
	return ex, nil
}

func logger() *log.Entry {
	return log.WithField("component", "exchange")
}

// ---- state helpers, callers hold mu ----

func (c *Coordinator) exchange() (*core.Exchange, error) {
	ex, err := c.state.GetExchange()
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: exchange not configured", core.ErrPoolNotInitialised)
	}
	return ex, err
}

// orchestrated loads the exchange and checks that caller may operate it.
func (c *Coordinator) orchestrated(caller string) (*core.Exchange, error) {
	ex, err := c.exchange()
	if err != nil {
		return nil, err
	}
	if caller != ex.Orchestrator {
		return nil, fmt.Errorf("%w: %q is not the orchestrator", core.ErrAccessDenied, caller)
	}
	return ex, nil
}

func checkPoolKey(ex *core.Exchange, poolKey string) error {
	if ex.Key == "" {
		return core.ErrPoolNotInitialised
	}
	if poolKey != ex.Key {
		return core.ErrPoolKeyMismatch
	}
	return nil
}

// persist runs fn inside a state snapshot and flushes the result. Any
// failure, including the flush, leaves state as it was.
func (c *Coordinator) persist(fn func() error) error {
	snapID, err := c.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	revert := func(cause error) error {
		if revertErr := c.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("%w (revert: %v)", cause, revertErr)
		}
		return cause
	}
	if err := fn(); err != nil {
		return revert(err)
	}
	if err := c.state.Commit(); err != nil {
		return revert(fmt.Errorf("flush state: %w", err))
	}
	return nil
}

// transition moves ex to the status produced by step. A wrong source
// phase is reported to the violation handler before it is returned.
func (c *Coordinator) transition(ex *core.Exchange, step func(core.Status) (core.Status, error)) error {
	next, err := step(ex.Status)
	if err != nil {
		c.onViolation(err)
		return err
	}
	if next != ex.Status {
		logger().WithFields(log.Fields{"from": ex.Status.Phase, "to": next.Phase}).Info("status changed")
	}
	ex.Status = next
	return nil
}

func (c *Coordinator) emit(ev events.Event) {
	c.emitter.Emit(ev)
}

// observe refreshes the gauges after a mutation.
func (c *Coordinator) observe() {
	if states, err := c.state.GetPoolStates(); err == nil {
		c.metrics.LedgerLength.Set(float64(len(states)))
		if len(states) > 0 {
			c.metrics.HeadNonce.Set(float64(states[len(states)-1].Nonce))
		}
	}
	if n, err := c.state.CountGamers(); err == nil {
		c.metrics.Gamers.Set(float64(n))
	}
	if ex, err := c.state.GetExchange(); err == nil {
		c.metrics.ClaimedRewards.Set(float64(ex.Game.ClaimedRewards))
	}
}

type result[T any] struct {
	val T
	err error
}

// callExternal runs fn under the external timeout. A call that outlives the
// timeout is abandoned and reported as an ExternalError.
func callExternal[T any](ctx context.Context, c *Coordinator, service string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{v, err}
	}()

	var r result[T]
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	c.metrics.ExternalDuration.WithLabelValues(service, metrics.Result(r.err)).Observe(time.Since(start).Seconds())
	if r.err != nil {
		var zero T
		return zero, &core.ExternalError{Service: service, Err: r.err}
	}
	return r.val, nil
}
