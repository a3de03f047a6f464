package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Error classes. Every sentinel below belongs to exactly one class so callers
// can decide how to react with errors.As instead of matching individual values.
type (
	ValidationError  string // malformed or stale intent, caller may retry with fresh data
	AccessError      string // caller is not allowed to perform the operation
	ConcurrencyError string // retry after backoff
	IntegrityError   string // orchestrator bug or misrouted confirmation
	ArithmeticError  string
	GameRuleError    string // expected, user-facing
)

func (e ValidationError) Error() string  { return string(e) }
func (e AccessError) Error() string      { return string(e) }
func (e ConcurrencyError) Error() string { return string(e) }
func (e IntegrityError) Error() string   { return string(e) }
func (e ArithmeticError) Error() string  { return string(e) }
func (e GameRuleError) Error() string    { return string(e) }

// keep in alphabetic order within each class
var (
	ErrAlreadyDeposited       = ValidationError("pool already funded")
	ErrDepositBalanceMismatch = ValidationError("deposit rune balance does not match max rewards")
	ErrGamerAlreadyExists     = ValidationError("gamer already exists")
	ErrInvalidIntent          = ValidationError("invalid intent")
	ErrNotPlaying             = ValidationError("game is not in play")
	ErrPoolAddressMismatch    = ValidationError("pool address does not match")
	ErrPoolKeyMismatch        = ValidationError("pool key does not match")
	ErrPoolNotInitialised     = ValidationError("pool key not initialised")
	ErrSpendMismatch          = ValidationError("spent outpoint does not match pool head")
	ErrStaleNonce             = ValidationError("pool state nonce expired")
	ErrUnsupportedIntent      = ValidationError("unsupported intent")

	ErrAccessDenied = AccessError("access denied")

	ErrPoolBusy = ConcurrencyError("pool busy with another transaction")

	ErrCannotRollbackGenesis = IntegrityError("cannot roll back genesis action")
	ErrCannotRollbackRoot    = IntegrityError("cannot roll back root state")
	ErrLedgerEmpty           = IntegrityError("pool ledger is empty")
	ErrUnknownTransaction    = IntegrityError("unknown transaction")

	ErrOverflow = ArithmeticError("arithmetic overflow")

	ErrAlreadyWithdrawn    = GameRuleError("rewards already withdrawn")
	ErrCoolingDown         = GameRuleError("gamer is cooling down")
	ErrGameNotEnded        = GameRuleError("game has not ended")
	ErrGamerNotFound       = GameRuleError("gamer not found")
	ErrRewardPoolExhausted = GameRuleError("reward pool exhausted")
)

// ErrIllegalTransition marks a game status transition attempted from the
// wrong phase. It is a programming contract violation, not a user error.
var ErrIllegalTransition = errors.New("illegal game status transition")

// StaleNonceError reports the nonce the caller should have used.
type StaleNonceError struct {
	Got     uint64
	Current uint64
}

func (e *StaleNonceError) Error() string {
	return fmt.Sprintf("%s: got %d, current %d", ErrStaleNonce, e.Got, e.Current)
}

func (e *StaleNonceError) Unwrap() error { return ErrStaleNonce }

// CoolingDownError carries the earliest unix second a claim will succeed.
type CoolingDownError struct {
	Gamer      string
	RetryAfter uint64
}

func (e *CoolingDownError) Error() string {
	return fmt.Sprintf("%s: %s may claim again at %d", ErrCoolingDown, e.Gamer, e.RetryAfter)
}

func (e *CoolingDownError) Unwrap() error { return ErrCoolingDown }

// ExternalError wraps a failure of the signing or identity service.
// The ledger is never modified when one is returned.
type ExternalError struct {
	Service string
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s service: %v", e.Service, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// determine the class of an error
func IsValidation(err error) bool  { var e ValidationError; return errors.As(err, &e) }
func IsAccess(err error) bool      { var e AccessError; return errors.As(err, &e) }
func IsConcurrency(err error) bool { var e ConcurrencyError; return errors.As(err, &e) }
func IsIntegrity(err error) bool   { var e IntegrityError; return errors.As(err, &e) }
func IsArithmetic(err error) bool  { var e ArithmeticError; return errors.As(err, &e) }
func IsGameRule(err error) bool    { var e GameRuleError; return errors.As(err, &e) }
func IsExternal(err error) bool    { var e *ExternalError; return errors.As(err, &e) }
