package exchange

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/tolelom/cookiepool/core"
	"github.com/tolelom/cookiepool/crypto"
)

// PoolInfo summarizes the pool for orchestrators.
type PoolInfo struct {
	Key               string             `json:"key"`
	KeyDerivationPath []string           `json:"key_derivation_path"`
	Name              string             `json:"name"`
	Address           string             `json:"address"`
	Nonce             uint64             `json:"nonce"`
	CoinReserved      []core.CoinBalance `json:"coin_reserved"`
	BTCReserved       uint64             `json:"btc_reserved"`
	Utxos             []core.Utxo        `json:"utxos"`
	Attributes        string             `json:"attributes"`
}

// GameAndGamer is the game summary with one gamer's entry, if any.
type GameAndGamer struct {
	Game   core.Game   `json:"game"`
	Status core.Status `json:"status"`
	Gamer  *core.Gamer `json:"gamer,omitempty"`
}

// RegisterInfo is what a client needs to build a register transaction.
type RegisterInfo struct {
	UntweakedKey string    `json:"untweaked_key"`
	TweakedKey   string    `json:"tweaked_key"`
	Address      string    `json:"address"`
	Utxo         core.Utxo `json:"utxo"`
	RegisterFee  uint64    `json:"register_fee"`
	Nonce        uint64    `json:"nonce"`
}

// PoolStates returns the ledger, oldest first.
func (c *Coordinator) PoolStates() ([]core.PoolState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ledger.States()
}

// PoolInfo returns the pool summary, or nil when address is not this pool
// or the pool is not funded yet.
func (c *Coordinator) PoolInfo(address string) (*PoolInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.poolInfo(address)
}

func (c *Coordinator) poolInfo(address string) (*PoolInfo, error) {
	ex, err := c.exchange()
	if err != nil {
		return nil, err
	}
	if ex.Address == "" || address != ex.Address {
		return nil, nil
	}
	states, err := c.ledger.States()
	if err != nil || len(states) == 0 {
		return nil, err
	}
	head := states[len(states)-1]
	utxos := []core.Utxo{head.Utxo}
	if head.RuneUtxo != nil {
		utxos = append(utxos, *head.RuneUtxo)
	}
	return &PoolInfo{
		Key:               ex.Key,
		KeyDerivationPath: []string{hex.EncodeToString(ex.RuneID.Bytes())},
		Name:              ex.RuneName,
		Address:           ex.Address,
		Nonce:             head.Nonce,
		CoinReserved:      []core.CoinBalance{{ID: ex.RuneID, Value: head.RuneBalance}},
		BTCReserved:       head.BTCBalance(),
		Utxos:             utxos,
	}, nil
}

// PoolList pages over the pools this exchange runs, which is at most one.
// A zero limit with a from key other than the pool key yields nothing.
func (c *Coordinator) PoolList(from string, limit int) ([]PoolInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ex, err := c.exchange()
	if err != nil {
		return nil, err
	}
	if limit == 0 && from != "" && from != ex.Key {
		return []PoolInfo{}, nil
	}
	info, err := c.poolInfo(ex.Address)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return []PoolInfo{}, nil
	}
	return []PoolInfo{*info}, nil
}

// GameInfo returns the game parameters and the entry for gamer.
func (c *Coordinator) GameInfo(gamer string) (*GameAndGamer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ex, err := c.exchange()
	if err != nil {
		return nil, err
	}
	out := &GameAndGamer{Game: ex.Game, Status: ex.Status}
	if gamer != "" {
		g, err := c.state.GetGamer(gamer)
		switch {
		case err == nil:
			out.Gamer = g
		case !errors.Is(err, core.ErrNotFound):
			return nil, err
		}
	}
	return out, nil
}

// RegisterInfo returns the keys, head output and fee a register
// transaction must use.
func (c *Coordinator) RegisterInfo() (*RegisterInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ex, err := c.exchange()
	if err != nil {
		return nil, err
	}
	if ex.Key == "" {
		return nil, core.ErrPoolNotInitialised
	}
	pub, err := crypto.PubKeyFromHex(ex.Key)
	if err != nil {
		return nil, fmt.Errorf("stored pool key: %w", err)
	}
	key, err := pub.Key()
	if err != nil {
		return nil, err
	}
	head, err := c.ledger.Head()
	if err != nil {
		return nil, err
	}
	return &RegisterInfo{
		UntweakedKey: ex.Key,
		TweakedKey:   hex.EncodeToString(schnorr.SerializePubKey(crypto.TweakedKey(key))),
		Address:      ex.Address,
		Utxo:         head.Utxo,
		RegisterFee:  ex.Game.RegisterFee,
		Nonce:        head.Nonce,
	}, nil
}

// MinimalTxValue is the smallest pool output value accepted, in sats.
func (c *Coordinator) MinimalTxValue() uint64 {
	return MinimalTxValue
}

// Status returns the game lifecycle status.
func (c *Coordinator) Status() (core.Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ex, err := c.exchange()
	if err != nil {
		return core.Status{}, err
	}
	return ex.Status, nil
}

// Exchange returns a copy of the exchange record.
func (c *Coordinator) Exchange() (*core.Exchange, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exchange()
}
