package core

import "math"

// NotStarted is the game start time before the pool is funded.
const NotStarted uint64 = math.MaxUint64

// ActionKind labels the reward side effect a pool state caused.
type ActionKind string

const (
	ActionInit     ActionKind = "init"
	ActionRegister ActionKind = "register"
	ActionWithdraw ActionKind = "withdraw"
)

// Action is the side effect a PoolState applied to the reward ledger.
// Rollback undoes it, so every kind must have a defined inverse.
type Action struct {
	Kind      ActionKind `json:"kind"`
	Gamer     string     `json:"gamer,omitempty"`     // initiator address
	Principal string     `json:"principal,omitempty"` // resolved identity, register only
	// PrevAddress is the gamer the principal mapped to before this register.
	PrevAddress string `json:"prev_address,omitempty"`
}

// InitAction is the action of the genesis state.
func InitAction() Action { return Action{Kind: ActionInit} }

// RegisterAction records a new gamer.
func RegisterAction(gamer string) Action {
	return Action{Kind: ActionRegister, Gamer: gamer}
}

// WithdrawAction records a reward withdrawal.
func WithdrawAction(gamer string) Action {
	return Action{Kind: ActionWithdraw, Gamer: gamer}
}

// PoolState is one node in the speculative chain of pool transactions.
// ID is nil only for the genesis node created at funding.
type PoolState struct {
	ID          *string `json:"id,omitempty"`
	Nonce       uint64  `json:"nonce"`
	Utxo        Utxo    `json:"utxo"`
	RuneUtxo    *Utxo   `json:"rune_utxo,omitempty"`
	RuneBalance uint64  `json:"rune_balance"`
	Action      Action  `json:"action"`
}

// Txid returns the id of the transaction that created s, empty for genesis.
func (s PoolState) Txid() string {
	if s.ID == nil {
		return ""
	}
	return *s.ID
}

// BTCBalance returns the sats held in the primary output.
func (s PoolState) BTCBalance() uint64 { return s.Utxo.Sats }

// HasID reports whether s was created by the transaction txid.
func (s PoolState) HasID(txid string) bool {
	return s.ID != nil && *s.ID == txid
}

// Gamer is a registered player of the reward game.
type Gamer struct {
	Address       string `json:"address"`
	Principal     string `json:"principal,omitempty"`
	Rewards       uint64 `json:"rewards"`
	LastClaimTime uint64 `json:"last_claim_time"` // unix seconds
	Withdrawn     bool   `json:"withdrawn"`
}

// Game holds the reward game parameters and the pool-wide claim counter.
// All times are unix seconds.
type Game struct {
	Duration       uint64 `json:"duration"`
	StartTime      uint64 `json:"start_time"`
	RegisterFee    uint64 `json:"register_fee"` // sats
	ClaimCooldown  uint64 `json:"claim_cooldown"`
	RewardPerClaim uint64 `json:"reward_per_claim"`
	MaxRewards     uint64 `json:"max_rewards"`
	ClaimedRewards uint64 `json:"claimed_rewards"`
}

// Ended reports whether now is past start + duration.
func (g Game) Ended(now uint64) bool {
	if g.StartTime == NotStarted {
		return false
	}
	end := g.StartTime + g.Duration
	if end < g.StartTime {
		return false // saturates: never ends
	}
	return now > end
}

// Exchange is the root aggregate persisted next to the pool states.
type Exchange struct {
	RuneName     string `json:"rune_name"`
	RuneID       CoinID `json:"rune_id"`
	Key          string `json:"key,omitempty"`     // untweaked compressed pubkey hex
	Address      string `json:"address,omitempty"` // taproot address of the tweaked key
	Orchestrator string `json:"orchestrator"`
	Status       Status `json:"status"`
	Game         Game   `json:"game"`
}

// State is the full exchange state interface. Implementations must be
// snapshot-able so ledger operations can be undone as a whole.
type State interface {
	// Exchange
	GetExchange() (*Exchange, error)
	SetExchange(ex *Exchange) error

	// Pool states, oldest first
	GetPoolStates() ([]PoolState, error)
	SetPoolStates(states []PoolState) error

	// Gamers
	GetGamer(address string) (*Gamer, error)
	SetGamer(g *Gamer) error
	DeleteGamer(address string) error
	CountGamers() (int, error)

	// Identity map: principal -> gamer address
	GetGamerAddress(principal string) (string, error)
	SetGamerAddress(principal, address string) error
	DeleteGamerAddress(principal string) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
