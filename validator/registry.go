// Package validator checks a submitted intent against the pool head and
// builds the candidate state it would produce. Validation never mutates
// state.
package validator

import (
	"fmt"
	"sync"

	"github.com/tolelom/cookiepool/core"
)

// Context is passed to every Handler. State is read only.
type Context struct {
	State    core.State
	Exchange *core.Exchange
	Head     core.PoolState
	Intent   core.Intent
	Txid     string
}

// Candidate is the state a valid intent would append, together with the
// pool outputs its transaction consumes.
type Candidate struct {
	State    core.PoolState
	Consumed []core.Utxo
}

// Handler validates one kind of intent.
type Handler func(ctx *Context) (*Candidate, error)

// Registry maps intent actions to Handlers. Thread-safe for concurrent registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.IntentAction]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[core.IntentAction]Handler)}
}

// Register associates action with h. Panics on duplicate registration.
func (r *Registry) Register(action core.IntentAction, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[action]; exists {
		panic(fmt.Sprintf("validator: handler already registered for action %q", action))
	}
	r.handlers[action] = h
}

// Validate dispatches ctx to the handler registered for its intent action.
// Unknown actions fail closed.
func (r *Registry) Validate(ctx *Context) (*Candidate, error) {
	r.mu.RLock()
	h, ok := r.handlers[ctx.Intent.Action]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedIntent, ctx.Intent.Action)
	}
	return h(ctx)
}

// globalRegistry is the package-level singleton that handlers register into.
var globalRegistry = NewRegistry()

// Register adds a handler to the global registry.
func Register(action core.IntentAction, h Handler) {
	globalRegistry.Register(action, h)
}

// Validate runs ctx through the global registry.
func Validate(ctx *Context) (*Candidate, error) {
	return globalRegistry.Validate(ctx)
}
