package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/events"
	"github.com/tolelom/cookiepool/metrics"
	"github.com/tolelom/cookiepool/validator"
)

// Execute validates the intent in req against the ledger head, has the
// transaction signed, resolves the initiator and commits the new pool
// state. It returns the signed transaction. Only one Execute may be
// between validation and commit; a concurrent call fails with
// core.ErrPoolBusy.
func (c *Coordinator) Execute(ctx context.Context, caller string, req core.ExecuteRequest) (signed string, err error) {
	entry := logger().WithFields(log.Fields{
		"request": uuid.NewString(),
		"txid":    req.Txid,
		"action":  req.Intent.Action,
		"nonce":   req.Intent.Nonce,
	})
	start := time.Now()
	defer func() {
		c.metrics.ExecuteTotal.WithLabelValues(metrics.Result(err)).Inc()
		c.metrics.ExecuteDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			entry.WithError(err).Warn("execute rejected")
		}
	}()

	if !c.admission.CompareAndSwap(false, true) {
		return "", core.ErrPoolBusy
	}
	defer c.admission.Store(false)

	ex, head, cand, err := c.validate(caller, req)
	if err != nil {
		return "", err
	}

	derivation := ex.RuneID.Bytes()
	signed, err = callExternal(ctx, c, "signer", func(ctx context.Context) (string, error) {
		return c.signer.Sign(ctx, req.TxHex, cand.Consumed, derivation)
	})
	if err != nil {
		return "", err
	}
	if cand.State.Action.Kind == core.ActionRegister {
		principal, err := callExternal(ctx, c, "identity", func(ctx context.Context) (string, error) {
			return c.identity.Resolve(ctx, req.Intent.InitiatorAddress)
		})
		if err != nil {
			return "", err
		}
		cand.State.Action.Principal = principal
	}

	if err := c.commit(head, req.Intent.Nonce, cand.State); err != nil {
		return "", err
	}
	entry.WithField("new_nonce", cand.State.Nonce).Info("pool state committed")
	return signed, nil
}

// validate runs the read-only part of Execute under the read lock.
func (c *Coordinator) validate(caller string, req core.ExecuteRequest) (*core.Exchange, core.PoolState, *validator.Candidate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ex, err := c.orchestrated(caller)
	if err != nil {
		return nil, core.PoolState{}, nil, err
	}
	if ex.Address == "" {
		return nil, core.PoolState{}, nil, core.ErrPoolNotInitialised
	}
	if req.Intent.PoolAddress != ex.Address {
		return nil, core.PoolState{}, nil, fmt.Errorf("%w: %s", core.ErrPoolAddressMismatch, req.Intent.PoolAddress)
	}
	if ex.Status.Phase != core.PhasePlaying {
		return nil, core.PoolState{}, nil, fmt.Errorf("%w: status is %s", core.ErrNotPlaying, ex.Status.Phase)
	}
	if req.Txid == "" {
		return nil, core.PoolState{}, nil, fmt.Errorf("%w: missing txid", core.ErrInvalidIntent)
	}
	head, err := c.ledger.Head()
	if err != nil {
		return nil, core.PoolState{}, nil, err
	}
	cand, err := validator.Validate(&validator.Context{
		State:    c.state,
		Exchange: ex,
		Head:     head,
		Intent:   req.Intent,
		Txid:     req.Txid,
	})
	if err != nil {
		return nil, core.PoolState{}, nil, err
	}
	return ex, head, cand, nil
}

// commit appends candidate if the head is still the one it was validated
// against and the game is still being played. A finalize cannot change the
// head, but a rollback can; a status change can end the game while the
// transaction is being signed.
func (c *Coordinator) commit(validated core.PoolState, nonce uint64, candidate core.PoolState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	head, err := c.ledger.Head()
	if err != nil {
		return err
	}
	if head.Nonce != validated.Nonce || head.Utxo.Outpoint() != validated.Utxo.Outpoint() {
		return &core.StaleNonceError{Got: nonce, Current: head.Nonce}
	}
	ex, err := c.exchange()
	if err != nil {
		return err
	}
	if ex.Status.Phase != core.PhasePlaying {
		return fmt.Errorf("%w: status is %s", core.ErrNotPlaying, ex.Status.Phase)
	}
	if err := c.persist(func() error { return c.ledger.Commit(candidate) }); err != nil {
		return err
	}
	c.observe()
	c.emit(events.Event{
		Type:  events.EventTxCommitted,
		TxID:  candidate.Txid(),
		Nonce: candidate.Nonce,
		Data: map[string]any{
			"action": string(candidate.Action.Kind),
			"gamer":  candidate.Action.Gamer,
			"sats":   candidate.Utxo.Sats,
		},
	})
	return nil
}

// Finalize records that txid is confirmed and prunes the history before it.
func (c *Coordinator) Finalize(ctx context.Context, caller, poolKey, txid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ex, err := c.orchestrated(caller)
	if err != nil {
		return err
	}
	if err := checkPoolKey(ex, poolKey); err != nil {
		return err
	}
	var pruned []core.PoolState
	err = c.persist(func() error {
		var err error
		pruned, err = c.ledger.Finalize(txid)
		return err
	})
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(pruned))
	for _, s := range pruned {
		if id := s.Txid(); id != "" {
			ids = append(ids, id)
		}
	}
	c.metrics.FinalizedTotal.Inc()
	c.observe()
	logger().WithFields(log.Fields{"txid": txid, "pruned": len(pruned)}).Info("transaction finalized")
	c.emit(events.Event{Type: events.EventTxFinalized, TxID: txid, Data: map[string]any{"pruned": ids}})
	return nil
}

// Rollback removes txid and every state built on it, undoing their reward
// side effects.
func (c *Coordinator) Rollback(ctx context.Context, caller, poolKey, txid string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ex, err := c.orchestrated(caller)
	if err != nil {
		return err
	}
	if err := checkPoolKey(ex, poolKey); err != nil {
		return err
	}
	var removed []core.PoolState
	err = c.persist(func() error {
		var err error
		removed, err = c.ledger.Rollback(txid)
		return err
	})
	if err != nil {
		logger().WithField("txid", txid).WithError(err).Error("rollback failed")
		return err
	}

	c.metrics.RolledBackTotal.Add(float64(len(removed)))
	c.observe()
	logger().WithFields(log.Fields{"txid": txid, "removed": len(removed)}).Info("transaction rolled back")
	for _, s := range removed {
		c.emit(events.Event{
			Type:  events.EventTxRolledBack,
			TxID:  s.Txid(),
			Nonce: s.Nonce,
			Data:  map[string]any{"action": string(s.Action.Kind), "gamer": s.Action.Gamer},
		})
	}
	return nil
}
