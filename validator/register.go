package validator

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/tolelom/cookiepool/core"
)

func init() {
	Register(core.IntentRegister, validateRegister)
}

func validateRegister(ctx *Context) (*Candidate, error) {
	in := ctx.Intent
	head := ctx.Head

	_, err := ctx.State.GetGamer(in.InitiatorAddress)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", core.ErrGamerAlreadyExists, in.InitiatorAddress)
	case !errors.Is(err, core.ErrNotFound):
		return nil, err
	}

	fee := ctx.Exchange.Game.RegisterFee
	if len(in.InputCoins) != 1 || len(in.OutputCoins) != 0 {
		return nil, fmt.Errorf("%w: register takes one input coin and no outputs, got %d/%d",
			core.ErrInvalidIntent, len(in.InputCoins), len(in.OutputCoins))
	}
	if coin := in.InputCoins[0].Coin; !coin.ID.IsBTC() || coin.Value < fee {
		return nil, fmt.Errorf("%w: register input %s=%d, want btc >= %d",
			core.ErrInvalidIntent, coin.ID, coin.Value, fee)
	}

	if in.Nonce != head.Nonce {
		return nil, &core.StaleNonceError{Got: in.Nonce, Current: head.Nonce}
	}

	if len(in.PoolUtxoSpend) == 0 {
		return nil, fmt.Errorf("%w: no pool outpoint spent", core.ErrInvalidIntent)
	}
	spent, err := core.ParseOutpoint(in.PoolUtxoSpend[len(in.PoolUtxoSpend)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidIntent, err)
	}
	headOut, err := head.Utxo.WireOutPoint()
	if err != nil {
		return nil, err
	}
	if spent != headOut {
		return nil, fmt.Errorf("%w: spent %s, head %s", core.ErrSpendMismatch, spent, head.Utxo.Outpoint())
	}

	if len(in.PoolUtxoReceive) == 0 {
		return nil, fmt.Errorf("%w: no pool outpoint received", core.ErrInvalidIntent)
	}
	sats, carry := bits.Add64(head.Utxo.Sats, fee, 0)
	if carry != 0 {
		return nil, fmt.Errorf("register value: %w", core.ErrOverflow)
	}
	utxo, err := core.NewUtxo(in.PoolUtxoReceive[len(in.PoolUtxoReceive)-1], sats, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidIntent, err)
	}
	if err := checkTxidUnused(ctx); err != nil {
		return nil, err
	}
	nonce, carry := bits.Add64(head.Nonce, 1, 0)
	if carry != 0 {
		return nil, fmt.Errorf("register nonce: %w", core.ErrOverflow)
	}

	txid := ctx.Txid
	return &Candidate{
		State: core.PoolState{
			ID:          &txid,
			Nonce:       nonce,
			Utxo:        utxo,
			RuneUtxo:    head.RuneUtxo,
			RuneBalance: head.RuneBalance,
			Action:      core.RegisterAction(in.InitiatorAddress),
		},
		Consumed: []core.Utxo{head.Utxo},
	}, nil
}

// checkTxidUnused rejects a txid that already names a pool state; finalize
// and rollback address states by txid.
func checkTxidUnused(ctx *Context) error {
	if ctx.Head.HasID(ctx.Txid) {
		return fmt.Errorf("%w: txid %s already in ledger", core.ErrInvalidIntent, ctx.Txid)
	}
	states, err := ctx.State.GetPoolStates()
	if err != nil {
		return err
	}
	for _, s := range states {
		if s.HasID(ctx.Txid) {
			return fmt.Errorf("%w: txid %s already in ledger", core.ErrInvalidIntent, ctx.Txid)
		}
	}
	return nil
}
