// Package game implements the reward ledger: gamer registration, periodic
// reward claims and the one-shot withdrawal at game end.
package game

import (
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/tolelom/cookiepool/core"
)

// Rewards applies reward-game rules to the exchange state.
type Rewards struct {
	state core.State
	now   func() time.Time
}

// NewRewards creates a reward ledger over state. now defaults to time.Now.
func NewRewards(state core.State, now func() time.Time) *Rewards {
	if now == nil {
		now = time.Now
	}
	return &Rewards{state: state, now: now}
}

func (r *Rewards) unixNow() uint64 {
	return uint64(r.now().Unix())
}

// Gamer returns the entry for address, or core.ErrGamerNotFound.
func (r *Rewards) Gamer(address string) (*core.Gamer, error) {
	g, err := r.state.GetGamer(address)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrGamerNotFound, address)
	}
	return g, err
}

// Exists reports whether address is registered.
func (r *Rewards) Exists(address string) (bool, error) {
	_, err := r.state.GetGamer(address)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Register creates the gamer entry and maps principal to it. Duplicate
// registration is rejected by the validator, not here.
func (r *Rewards) Register(address, principal string) error {
	if err := r.state.SetGamer(&core.Gamer{Address: address, Principal: principal}); err != nil {
		return err
	}
	if principal == "" {
		return nil
	}
	return r.state.SetGamerAddress(principal, address)
}

// Claim credits one reward unit batch to the gamer and to the pool-wide
// claimed counter, returning the gamer's new balance.
func (r *Rewards) Claim(address string) (uint64, error) {
	ex, err := r.state.GetExchange()
	if err != nil {
		return 0, err
	}
	game := &ex.Game
	if game.ClaimedRewards > game.MaxRewards || game.MaxRewards-game.ClaimedRewards < game.RewardPerClaim {
		return 0, core.ErrRewardPoolExhausted
	}

	g, err := r.Gamer(address)
	if err != nil {
		return 0, err
	}
	now := r.unixNow()
	retryAfter, carry := bits.Add64(g.LastClaimTime, game.ClaimCooldown, 0)
	if carry != 0 {
		return 0, core.ErrOverflow
	}
	if now < retryAfter {
		return 0, &core.CoolingDownError{Gamer: address, RetryAfter: retryAfter}
	}

	claimed, carry := bits.Add64(game.ClaimedRewards, game.RewardPerClaim, 0)
	if carry != 0 {
		return 0, core.ErrOverflow
	}
	balance, carry := bits.Add64(g.Rewards, game.RewardPerClaim, 0)
	if carry != 0 {
		return 0, core.ErrOverflow
	}

	game.ClaimedRewards = claimed
	g.Rewards = balance
	g.LastClaimTime = now
	if err := r.state.SetGamer(g); err != nil {
		return 0, err
	}
	if err := r.state.SetExchange(ex); err != nil {
		return 0, err
	}
	return balance, nil
}

// Withdraw marks the gamer's rewards as withdrawn and returns the frozen
// balance. It succeeds at most once per gamer.
func (r *Rewards) Withdraw(address string) (uint64, error) {
	ex, err := r.state.GetExchange()
	if err != nil {
		return 0, err
	}
	if !ex.Game.Ended(r.unixNow()) {
		return 0, core.ErrGameNotEnded
	}
	g, err := r.Gamer(address)
	if err != nil {
		return 0, err
	}
	if g.Withdrawn {
		return 0, fmt.Errorf("%w: %s", core.ErrAlreadyWithdrawn, address)
	}
	g.Withdrawn = true
	if err := r.state.SetGamer(g); err != nil {
		return 0, err
	}
	return g.Rewards, nil
}

// addressOf returns the gamer address principal maps to, empty if none.
func (r *Rewards) addressOf(principal string) (string, error) {
	if principal == "" {
		return "", nil
	}
	addr, err := r.state.GetGamerAddress(principal)
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	return addr, err
}

// Apply performs the side effect recorded by a committed pool state. For a
// register it records on a the address the principal mapped to before, so
// Undo can restore it.
func (r *Rewards) Apply(a *core.Action) error {
	switch a.Kind {
	case core.ActionInit:
		return nil
	case core.ActionRegister:
		prev, err := r.addressOf(a.Principal)
		if err != nil {
			return err
		}
		if err := r.Register(a.Gamer, a.Principal); err != nil {
			return err
		}
		a.PrevAddress = prev
		return nil
	case core.ActionWithdraw:
		_, err := r.Withdraw(a.Gamer)
		return err
	default:
		return fmt.Errorf("apply: unknown action %q", a.Kind)
	}
}

// Undo reverses the side effect of a rolled back pool state.
func (r *Rewards) Undo(a core.Action) error {
	switch a.Kind {
	case core.ActionInit:
		return core.ErrCannotRollbackGenesis
	case core.ActionRegister:
		g, err := r.Gamer(a.Gamer)
		if err != nil {
			return fmt.Errorf("undo register: %w", err)
		}
		if err := r.state.DeleteGamer(a.Gamer); err != nil {
			return err
		}
		if g.Principal == "" {
			return nil
		}
		current, err := r.addressOf(g.Principal)
		if err != nil || current != a.Gamer {
			return err
		}
		if a.PrevAddress != "" {
			return r.state.SetGamerAddress(g.Principal, a.PrevAddress)
		}
		return r.state.DeleteGamerAddress(g.Principal)
	case core.ActionWithdraw:
		g, err := r.Gamer(a.Gamer)
		if err != nil {
			return fmt.Errorf("undo withdraw: %w", err)
		}
		g.Withdrawn = false
		return r.state.SetGamer(g)
	default:
		return fmt.Errorf("undo: unknown action %q", a.Kind)
	}
}
