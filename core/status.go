package core

import "fmt"

// Phase is the coarse lifecycle stage of the game.
type Phase string

const (
	PhaseInitializing   Phase = "initializing"
	PhasePlaying        Phase = "playing"
	PhaseEnded          Phase = "ended"
	PhaseRewardsMinted  Phase = "rewards_minted"
	PhaseLiquidityAdded Phase = "liquidity_added"
	PhaseWithdrawable   Phase = "withdrawable"
)

// Status is the game lifecycle state machine. KeyReady and FundingReady are
// only meaningful while initializing.
//
//	initializing{key,funding} -> playing -> ended -> rewards_minted -> liquidity_added
//	                                        ended -> withdrawable
type Status struct {
	Phase        Phase `json:"phase"`
	KeyReady     bool  `json:"key_ready,omitempty"`
	FundingReady bool  `json:"funding_ready,omitempty"`
}

// InitialStatus is the status of a freshly configured pool.
func InitialStatus() Status { return Status{Phase: PhaseInitializing} }

// TransitionError reports a transition requested from the wrong phase.
type TransitionError struct {
	From Phase
	Want Phase
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s requires %s, status is %s", ErrIllegalTransition, e.Op, e.Want, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

func (s Status) require(want Phase, op string) error {
	if s.Phase != want {
		return &TransitionError{From: s.Phase, Want: want, Op: op}
	}
	return nil
}

// FinishKey marks the pool key as derived.
func (s Status) FinishKey() (Status, error) {
	if err := s.require(PhaseInitializing, "finish key"); err != nil {
		return s, err
	}
	if s.FundingReady {
		return Status{Phase: PhasePlaying}, nil
	}
	return Status{Phase: PhaseInitializing, KeyReady: true}, nil
}

// FinishFunding marks the pool as funded.
func (s Status) FinishFunding() (Status, error) {
	if err := s.require(PhaseInitializing, "finish funding"); err != nil {
		return s, err
	}
	if s.KeyReady {
		return Status{Phase: PhasePlaying}, nil
	}
	return Status{Phase: PhaseInitializing, FundingReady: true}, nil
}

func (s Status) End() (Status, error) {
	if err := s.require(PhasePlaying, "end"); err != nil {
		return s, err
	}
	return Status{Phase: PhaseEnded}, nil
}

func (s Status) MintRewards() (Status, error) {
	if err := s.require(PhaseEnded, "mint rewards"); err != nil {
		return s, err
	}
	return Status{Phase: PhaseRewardsMinted}, nil
}

func (s Status) AddLiquidity() (Status, error) {
	if err := s.require(PhaseRewardsMinted, "add liquidity"); err != nil {
		return s, err
	}
	return Status{Phase: PhaseLiquidityAdded}, nil
}

func (s Status) OpenWithdrawals() (Status, error) {
	if err := s.require(PhaseEnded, "open withdrawals"); err != nil {
		return s, err
	}
	return Status{Phase: PhaseWithdrawable}, nil
}
