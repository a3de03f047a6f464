package rpc

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/tolelom/cookiepool/metrics"
)

// Server is a JSON-RPC 2.0 HTTP server.
type Server struct {
	handler  *Handler
	addr     string
	tokens   map[string]string // bearer token → principal
	gatherer prometheus.Gatherer
	stream   *Stream
	tlsCfg   *tls.Config
	srv      *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTokens maps bearer tokens to the principals they authenticate.
// Requests without a token are served as an anonymous caller.
func WithTokens(tokens map[string]string) ServerOption {
	return func(s *Server) { s.tokens = tokens }
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// WithStream serves st on /ws.
func WithStream(st *Stream) ServerOption {
	return func(s *Server) { s.stream = st }
}

// WithTLS serves over TLS.
func WithTLS(cfg *tls.Config) ServerOption {
	return func(s *Server) { s.tlsCfg = cfg }
}

// NewServer creates a Server on addr.
func NewServer(addr string, handler *Handler, opts ...ServerOption) *Server {
	s := &Server{handler: handler, addr: addr}
	for _, opt := range opts {
		opt(s)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.serveHTTP)
	if s.gatherer != nil {
		mux.Handle("/metrics", metrics.Handler(s.gatherer))
	}
	if s.stream != nil {
		mux.Handle("/ws", s.stream)
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second, // execute_tx waits on the signer
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler with every endpoint mounted.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run binds the port and serves until ctx is done, then shuts down
// gracefully, waiting up to 5 seconds for in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	if s.tlsCfg != nil {
		ln = tls.NewListener(ln, s.tlsCfg)
	}
	logger().WithFields(log.Fields{"addr": ln.Addr().String(), "tls": s.tlsCfg != nil}).Info("rpc listening")

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger().Info("rpc stopped")
	return nil
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST allowed", http.StatusMethodNotAllowed)
		return
	}

	caller, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, errResponse(nil, CodeUnauthorized, "unauthorized"))
		return
	}

	// Limit request body to 1 MB to prevent memory exhaustion.
	r.Body = http.MaxBytesReader(w, r.Body, 1*1024*1024)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errResponse(nil, CodeParseError, err.Error()))
		return
	}
	if req.JSONRPC != "2.0" {
		writeJSON(w, errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be '2.0'"))
		return
	}

	resp := s.handler.Dispatch(r.Context(), caller, req)
	writeJSON(w, resp)
}

// authenticate resolves the bearer token to a principal. No header means an
// anonymous caller; an unknown token is rejected.
func (s *Server) authenticate(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", true
	}
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return "", false
	}
	for t, principal := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return principal, true
		}
	}
	return "", false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func logger() *log.Entry {
	return log.WithField("component", "rpc")
}
