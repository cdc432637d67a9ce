package entity

import (
	"fmt"
	"slices"
	"time"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/apperror"
)

type Phase string

const (
	PhaseOpen     Phase = "open"
	PhaseLocked   Phase = "locked"
	PhaseResolved Phase = "resolved"
)

type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLose    Outcome = "lose"
	OutcomeNoGuess Outcome = "no_guess"
)

var DefaultBetOptions = []int{10, 20, 30, 40, 50, 100}

type Round struct {
	ID        string    `json:"id"`
	Card      string    `json:"card"`
	Bet       int       `json:"bet,omitempty"`
	Guess     Side      `json:"guess,omitempty"`
	Message   string    `json:"message"`
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"started_at"`
}

// Result is the settlement record of a resolved round.
type Result struct {
	SessionID       string    `json:"session_id"`
	RoundID         string    `json:"round_id"`
	Card            string    `json:"card"`
	Guess           Side      `json:"guess,omitempty"`
	Bet             int       `json:"bet"`
	Outcome         Outcome   `json:"outcome"`
	BalanceBefore   int       `json:"balance_before"`
	BalanceAfter    int       `json:"balance_after"`
	Message         string    `json:"message"`
	DepositRequired bool      `json:"deposit_required"`
	SettledAt       time.Time `json:"settled_at"`
}

func NewRound(id, card string, startedAt time.Time) *Round {
	return &Round{
		ID:        id,
		Card:      card,
		Phase:     PhaseOpen,
		StartedAt: startedAt,
	}
}

func (that *Round) IsOpen() bool {
	return that.Phase == PhaseOpen
}

func (that *Round) IsLocked() bool {
	return that.Phase == PhaseLocked
}

func (that *Round) IsResolved() bool {
	return that.Phase == PhaseResolved
}

func (that *Round) HasGuess() bool {
	return that.Guess != ""
}

// PlaceBet records the stake for the round. The stake may change until a guess is made.
func (that *Round) PlaceBet(amount int, options []int, balance int) error {
	if !that.IsOpen() {
		return apperror.ErrRoundNotOpen
	}

	if amount <= 0 {
		return apperror.ErrBetNotSelected
	}

	if !slices.Contains(options, amount) {
		return fmt.Errorf("%w: %d", apperror.ErrInvalidBetAmount, amount)
	}

	if amount > balance {
		return apperror.ErrInsufficientBalance
	}

	that.Bet = amount

	return nil
}

// PlaceGuess locks the round on the chosen side.
func (that *Round) PlaceGuess(side Side, balance int) error {
	switch {
	case that.IsLocked():
		return apperror.ErrGuessAlreadyPlaced
	case !that.IsOpen():
		return apperror.ErrRoundNotOpen
	}

	if side != SideEkki && side != SideBekki {
		return apperror.ErrInvalidSide
	}

	if that.Bet <= 0 {
		return apperror.ErrBetNotSelected
	}

	if balance <= MinBalance {
		return apperror.ErrZeroBalance
	}

	if that.Bet > balance {
		return apperror.ErrInsufficientBalance
	}

	that.Guess = side
	that.Phase = PhaseLocked

	return nil
}

// Resolve settles the round against the session balance and closes it.
func (that *Round) Resolve(session *Session, settledAt time.Time) (*Result, error) {
	if that.IsResolved() {
		return nil, apperror.ErrRoundNotOpen
	}

	cardSide, err := SideOf(that.Card)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve round %s: %w", that.ID, err)
	}

	result := &Result{
		SessionID:     session.ID,
		RoundID:       that.ID,
		Card:          that.Card,
		Guess:         that.Guess,
		BalanceBefore: session.Balance,
		SettledAt:     settledAt,
	}

	switch {
	case !that.HasGuess():
		result.Outcome = OutcomeNoGuess
		result.Message = fmt.Sprintf("Time's up! The card was %s. No guess made.", that.Card)
	case that.Guess == cardSide:
		session.Credit(that.Bet)
		result.Bet = that.Bet
		result.Outcome = OutcomeWin
		result.Message = fmt.Sprintf("You Win! The card was %s. You earned %d.", that.Card, that.Bet)
	default:
		session.Debit(that.Bet)
		result.Bet = that.Bet
		result.Outcome = OutcomeLose
		result.Message = fmt.Sprintf("You Lose! The card was %s. You lost %d.", that.Card, that.Bet)
	}

	result.BalanceAfter = session.Balance
	result.DepositRequired = that.HasGuess() && session.IsEmpty()

	that.Message = result.Message
	that.Phase = PhaseResolved

	return result, nil
}
