package exchange

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	log "github.com/sirupsen/logrus"
	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/crypto"
	"github.com/tolelom/cookiepool/events"
	"github.com/tolelom/cookiepool/metrics"
)

// InitKey derives the pool key with the rune id as derivation path and
// stores it with its taproot address. Once set, the stored address is
// returned without contacting the signer.
func (c *Coordinator) InitKey(ctx context.Context) (string, error) {
	c.mu.RLock()
	ex, err := c.exchange()
	c.mu.RUnlock()
	if err != nil {
		return "", err
	}
	if ex.Address != "" {
		return ex.Address, nil
	}

	derivation := ex.RuneID.Bytes()
	key, err := callExternal(ctx, c, "signer", func(ctx context.Context) (*btcec.PublicKey, error) {
		return c.signer.PoolKey(ctx, derivation)
	})
	if err != nil {
		return "", err
	}
	addr, err := crypto.TaprootAddress(key, c.params)
	if err != nil {
		return "", fmt.Errorf("pool address: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ex, err = c.exchange()
	if err != nil {
		return "", err
	}
	if ex.Address != "" {
		return ex.Address, nil
	}
	ex.Key = hex.EncodeToString(key.SerializeCompressed())
	ex.Address = addr.EncodeAddress()
	err = c.persist(func() error {
		if err := c.transition(ex, core.Status.FinishKey); err != nil {
			return err
		}
		return c.state.SetExchange(ex)
	})
	if err != nil {
		return "", err
	}
	logger().WithFields(log.Fields{"key": ex.Key, "address": ex.Address}).Info("pool key initialised")
	c.emit(events.Event{Type: events.EventKeyInitialised, Data: map[string]any{"address": ex.Address}})
	c.emitStatus(ex)
	return ex.Address, nil
}

// Deposit funds the pool with the reward rune and the initial bitcoin
// output, creating the genesis state and starting the game clock.
func (c *Coordinator) Deposit(ctx context.Context, caller string, runeUtxo, btcUtxo core.Utxo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ex, err := c.orchestrated(caller)
	if err != nil {
		return err
	}
	bal := runeUtxo.Rune
	if bal == nil || bal.ID.IsBTC() {
		return fmt.Errorf("%w: rune utxo carries no rune", core.ErrInvalidIntent)
	}
	if bal.ID != ex.RuneID {
		return fmt.Errorf("%w: rune %s, pool rune %s", core.ErrInvalidIntent, bal.ID, ex.RuneID)
	}
	if bal.Value != ex.Game.MaxRewards {
		return fmt.Errorf("%w: got %d, want %d", core.ErrDepositBalanceMismatch, bal.Value, ex.Game.MaxRewards)
	}

	for name, u := range map[string]core.Utxo{"rune": runeUtxo, "btc": btcUtxo} {
		if _, err := u.WireOutPoint(); err != nil {
			return fmt.Errorf("%w: %s utxo: %v", core.ErrInvalidIntent, name, err)
		}
	}
	if btcUtxo.Sats < MinimalTxValue {
		return fmt.Errorf("%w: btc utxo holds %d sats, minimum %d", core.ErrInvalidIntent, btcUtxo.Sats, MinimalTxValue)
	}

	root := core.PoolState{
		Nonce:       0,
		Utxo:        btcUtxo,
		RuneUtxo:    &runeUtxo,
		RuneBalance: bal.Value,
		Action:      core.InitAction(),
	}
	err = c.persist(func() error {
		if err := c.ledger.Genesis(root); err != nil {
			return err
		}
		ex.Game.StartTime = uint64(c.now().Unix())
		if err := c.transition(ex, core.Status.FinishFunding); err != nil {
			return err
		}
		return c.state.SetExchange(ex)
	})
	if err != nil {
		return err
	}
	c.observe()
	logger().WithFields(log.Fields{"btc_utxo": btcUtxo.Outpoint(), "rune_utxo": runeUtxo.Outpoint()}).Info("pool funded")
	c.emit(events.Event{Type: events.EventPoolDeposit, Data: map[string]any{
		"sats":         btcUtxo.Sats,
		"rune_balance": bal.Value,
	}})
	c.emitStatus(ex)
	return nil
}

// Claim credits the caller's gamer with one batch of rewards and returns
// the new balance.
func (c *Coordinator) Claim(ctx context.Context, caller string) (balance uint64, err error) {
	defer func() { c.metrics.ClaimsTotal.WithLabelValues(metrics.Result(err)).Inc() }()

	c.mu.Lock()
	defer c.mu.Unlock()

	ex, err := c.exchange()
	if err != nil {
		return 0, err
	}
	if ex.Status.Phase != core.PhasePlaying || ex.Game.Ended(uint64(c.now().Unix())) {
		return 0, fmt.Errorf("%w: status is %s", core.ErrNotPlaying, ex.Status.Phase)
	}
	address, err := c.state.GetGamerAddress(caller)
	if errors.Is(err, core.ErrNotFound) {
		return 0, fmt.Errorf("%w: principal %s", core.ErrGamerNotFound, caller)
	}
	if err != nil {
		return 0, err
	}
	err = c.persist(func() error {
		var err error
		balance, err = c.rewards.Claim(address)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.observe()
	c.emit(events.Event{Type: events.EventRewardClaimed, Data: map[string]any{
		"gamer":   address,
		"balance": balance,
	}})
	return balance, nil
}

// EndGame closes the game once its clock has run out.
func (c *Coordinator) EndGame(ctx context.Context, caller string) error {
	return c.advance(caller, "end game", func(ex *core.Exchange) error {
		if !ex.Game.Ended(uint64(c.now().Unix())) {
			return core.ErrGameNotEnded
		}
		return c.transition(ex, core.Status.End)
	})
}

// MarkRewardsMinted records that the claimed rewards have been minted.
func (c *Coordinator) MarkRewardsMinted(ctx context.Context, caller string) error {
	return c.advance(caller, "mint rewards", func(ex *core.Exchange) error {
		return c.transition(ex, core.Status.MintRewards)
	})
}

// MarkLiquidityAdded records that the pool liquidity has been provided.
func (c *Coordinator) MarkLiquidityAdded(ctx context.Context, caller string) error {
	return c.advance(caller, "add liquidity", func(ex *core.Exchange) error {
		return c.transition(ex, core.Status.AddLiquidity)
	})
}

// OpenWithdrawals lets gamers withdraw their rewards.
func (c *Coordinator) OpenWithdrawals(ctx context.Context, caller string) error {
	return c.advance(caller, "open withdrawals", func(ex *core.Exchange) error {
		return c.transition(ex, core.Status.OpenWithdrawals)
	})
}

// advance applies an orchestrator-only status change.
func (c *Coordinator) advance(caller, op string, fn func(ex *core.Exchange) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ex, err := c.orchestrated(caller)
	if err != nil {
		return err
	}
	err = c.persist(func() error {
		if err := fn(ex); err != nil {
			return err
		}
		return c.state.SetExchange(ex)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.emitStatus(ex)
	return nil
}

func (c *Coordinator) emitStatus(ex *core.Exchange) {
	c.emit(events.Event{Type: events.EventStatusChanged, Data: map[string]any{
		"phase":         string(ex.Status.Phase),
		"key_ready":     ex.Status.KeyReady,
		"funding_ready": ex.Status.FundingReady,
	}})
}
