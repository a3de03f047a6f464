package events

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// EventType labels what happened.
type EventType string

const (
	EventKeyInitialised EventType = "key_initialised"
	EventPoolDeposit    EventType = "pool_deposit"
	EventTxCommitted    EventType = "tx_committed"
	EventTxFinalized    EventType = "tx_finalized"
	EventTxRolledBack   EventType = "tx_rolled_back"
	EventRewardClaimed  EventType = "reward_claimed"
	EventStatusChanged  EventType = "status_changed"
)

// Event carries a typed payload emitted after a state change has been
// flushed to storage.
type Event struct {
	Type  EventType      `json:"type"`
	TxID  string         `json:"tx_id,omitempty"`
	Nonce uint64         `json:"nonce"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      map[int]Handler
	nextID   int
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[EventType][]Handler),
		all:      make(map[int]Handler),
	}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type. The returned func removes it.
func (e *Emitter) SubscribeAll(h Handler) (cancel func()) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.all[id] = h
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.all, id)
		e.mu.Unlock()
	}
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot take the coordinator down.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := append([]Handler(nil), e.handlers[ev.Type]...)
	for _, h := range e.all {
		handlers = append(handlers, h)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{"component": "events", "type": ev.Type}).
						Errorf("handler panicked: %v", r)
				}
			}()
			h(ev)
		}()
	}
}
