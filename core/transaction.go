package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// CoinID identifies an asset by the block and transaction index of its
// etching. The zero value is the base asset (bitcoin).
type CoinID struct {
	Block uint64 `json:"block"`
	Tx    uint32 `json:"tx"`
}

// BTC is the base asset id.
var BTC = CoinID{}

// IsBTC reports whether id is the base asset.
func (id CoinID) IsBTC() bool { return id == BTC }

func (id CoinID) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.Tx)
}

// Bytes returns the id as a key derivation path component.
func (id CoinID) Bytes() []byte {
	return []byte(id.String())
}

// ParseCoinID decodes the "block:tx" form.
func ParseCoinID(s string) (CoinID, error) {
	block, tx, ok := strings.Cut(s, ":")
	if !ok {
		return CoinID{}, fmt.Errorf("coin id %q: missing separator", s)
	}
	b, err := strconv.ParseUint(block, 10, 64)
	if err != nil {
		return CoinID{}, fmt.Errorf("coin id %q block: %w", s, err)
	}
	t, err := strconv.ParseUint(tx, 10, 32)
	if err != nil {
		return CoinID{}, fmt.Errorf("coin id %q tx: %w", s, err)
	}
	return CoinID{Block: b, Tx: uint32(t)}, nil
}

// CoinBalance is an amount of a single asset.
type CoinBalance struct {
	ID    CoinID `json:"id"`
	Value uint64 `json:"value"`
}

// InputCoin is a coin the initiator declares it sends into the pool.
type InputCoin struct {
	From string      `json:"from"`
	Coin CoinBalance `json:"coin"`
}

// OutputCoin is a coin the initiator declares the pool sends out.
type OutputCoin struct {
	To   string      `json:"to"`
	Coin CoinBalance `json:"coin"`
}

// Utxo is an unspent output owned by the pool. Rune is set when the output
// also carries a secondary asset balance.
type Utxo struct {
	Txid string       `json:"txid"`
	Vout uint32       `json:"vout"`
	Sats uint64       `json:"sats"`
	Rune *CoinBalance `json:"rune,omitempty"`
}

// Outpoint returns the "txid:vout" form.
func (u Utxo) Outpoint() string {
	return fmt.Sprintf("%s:%d", u.Txid, u.Vout)
}

// WireOutPoint converts the utxo reference to its wire form.
func (u Utxo) WireOutPoint() (wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(u.Txid)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("utxo txid %q: %w", u.Txid, err)
	}
	return wire.OutPoint{Hash: *hash, Index: u.Vout}, nil
}

// ParseOutpoint decodes "txid:vout".
func ParseOutpoint(s string) (wire.OutPoint, error) {
	txid, vout, ok := strings.Cut(s, ":")
	if !ok {
		return wire.OutPoint{}, fmt.Errorf("outpoint %q: missing separator", s)
	}
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("outpoint %q txid: %w", s, err)
	}
	idx, err := strconv.ParseUint(vout, 10, 32)
	if err != nil {
		return wire.OutPoint{}, fmt.Errorf("outpoint %q vout: %w", s, err)
	}
	return wire.OutPoint{Hash: *hash, Index: uint32(idx)}, nil
}

// NewUtxo builds a pool utxo from an outpoint string.
func NewUtxo(outpoint string, sats uint64, rune *CoinBalance) (Utxo, error) {
	op, err := ParseOutpoint(outpoint)
	if err != nil {
		return Utxo{}, err
	}
	return Utxo{Txid: op.Hash.String(), Vout: op.Index, Sats: sats, Rune: rune}, nil
}

// IntentAction names what an intent asks the pool to do.
type IntentAction string

const (
	IntentRegister     IntentAction = "register"
	IntentWithdraw     IntentAction = "withdraw"
	IntentAddLiquidity IntentAction = "add_liquidity"
)

// Intent is an initiator's declaration of a pool transaction, including the
// coin movements it claims the transaction performs.
type Intent struct {
	Action           IntentAction `json:"action"`
	PoolAddress      string       `json:"pool_address"`
	Nonce            uint64       `json:"nonce"`
	PoolUtxoSpend    []string     `json:"pool_utxo_spend"`
	PoolUtxoReceive  []string     `json:"pool_utxo_receive"`
	InputCoins       []InputCoin  `json:"input_coins"`
	OutputCoins      []OutputCoin `json:"output_coins"`
	InitiatorAddress string       `json:"initiator_address"`
}

// ExecuteRequest is what the orchestrator submits for signing: the unsigned
// transaction (hex PSBT), its id, and the intent it implements.
type ExecuteRequest struct {
	TxHex  string `json:"psbt_hex"`
	Txid   string `json:"txid"`
	Intent Intent `json:"intent"`
}
