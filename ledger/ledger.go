// Package ledger maintains the speculative, nonce-ordered chain of pool
// states. The first element is the latest confirmed (or genesis) state; the
// last element is the head new intents are validated against.
package ledger

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tolelom/cookiepool/core"
)

// Effects applies and reverses the reward side effect recorded on a state.
type Effects interface {
	Apply(a *core.Action) error
	Undo(a core.Action) error
}

// Ledger mutates the pool states held in a core.State. Every mutation runs
// inside a state snapshot and is reverted as a whole on failure; flushing to
// disk is left to the caller.
type Ledger struct {
	state   core.State
	effects Effects
}

// New creates a Ledger over state, routing side effects to effects.
func New(state core.State, effects Effects) *Ledger {
	return &Ledger{state: state, effects: effects}
}

// States returns all pool states, oldest first.
func (l *Ledger) States() ([]core.PoolState, error) {
	return l.state.GetPoolStates()
}

// Head returns the last pool state. An empty ledger after funding is an
// invariant violation.
func (l *Ledger) Head() (core.PoolState, error) {
	states, err := l.state.GetPoolStates()
	if err != nil {
		return core.PoolState{}, err
	}
	if len(states) == 0 {
		log.WithField("component", "ledger").Error(core.ErrLedgerEmpty)
		return core.PoolState{}, core.ErrLedgerEmpty
	}
	return states[len(states)-1], nil
}

// Genesis stores the funding state. The ledger must be empty.
func (l *Ledger) Genesis(root core.PoolState) error {
	states, err := l.state.GetPoolStates()
	if err != nil {
		return err
	}
	if len(states) != 0 {
		return core.ErrAlreadyDeposited
	}
	return l.state.SetPoolStates([]core.PoolState{root})
}

// Commit appends a validated candidate and applies its action.
func (l *Ledger) Commit(candidate core.PoolState) error {
	return l.atomically(func() error {
		states, err := l.state.GetPoolStates()
		if err != nil {
			return err
		}
		if err := l.effects.Apply(&candidate.Action); err != nil {
			return fmt.Errorf("apply %s: %w", candidate.Action.Kind, err)
		}
		return l.state.SetPoolStates(append(states, candidate))
	})
}

// Finalize discards every state before the one created by txid, which
// becomes the new root. It returns the discarded states, oldest first.
func (l *Ledger) Finalize(txid string) ([]core.PoolState, error) {
	states, err := l.state.GetPoolStates()
	if err != nil {
		return nil, err
	}
	idx := indexOf(states, txid)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownTransaction, txid)
	}
	if idx == 0 {
		return nil, nil
	}
	if err := l.state.SetPoolStates(states[idx:]); err != nil {
		return nil, err
	}
	return states[:idx], nil
}

// Rollback removes the state created by txid and every state built on top
// of it, undoing their actions newest first. It returns the removed states
// in removal order. The root state is never rolled back.
func (l *Ledger) Rollback(txid string) ([]core.PoolState, error) {
	var removed []core.PoolState
	err := l.atomically(func() error {
		states, err := l.state.GetPoolStates()
		if err != nil {
			return err
		}
		idx := indexOf(states, txid)
		if idx < 0 {
			return fmt.Errorf("%w: %s", core.ErrUnknownTransaction, txid)
		}
		if idx == 0 {
			return core.ErrCannotRollbackRoot
		}
		for len(states) > idx {
			last := states[len(states)-1]
			states = states[:len(states)-1]
			if err := l.effects.Undo(last.Action); err != nil {
				return fmt.Errorf("undo nonce %d: %w", last.Nonce, err)
			}
			removed = append(removed, last)
		}
		return l.state.SetPoolStates(states)
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (l *Ledger) atomically(fn func() error) error {
	snapID, err := l.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := fn(); err != nil {
		if revertErr := l.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after ledger failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}
	return nil
}

func indexOf(states []core.PoolState, txid string) int {
	for i, s := range states {
		if s.HasID(txid) {
			return i
		}
	}
	return -1
}
