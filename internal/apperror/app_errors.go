package apperror

import "errors"

// Advisory errors. Their text is shown to the player as the round message.
var (
	ErrBetNotSelected      = errors.New("please select a bet amount")
	ErrInvalidBetAmount    = errors.New("bet amount is not one of the available options")
	ErrInsufficientBalance = errors.New("insufficient balance to place the bet")
	ErrZeroBalance         = errors.New("your balance is zero, please deposit to continue playing")
	ErrGuessAlreadyPlaced  = errors.New("guess is already placed for this round")
	ErrRoundNotOpen        = errors.New("round is not open")
	ErrInvalidSide         = errors.New("guess must be ekki or bekki")
	ErrInvalidDeposit      = errors.New("deposit amount must be positive")
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrHistoryDisabled  = errors.New("round history is not configured")
	ErrEngineStopped    = errors.New("round engine is stopped")
	ErrUnknownCard      = errors.New("unknown card")
	ErrInvalidRoundRule = errors.New("invalid round rules")
)

var advisories = []error{
	ErrBetNotSelected,
	ErrInvalidBetAmount,
	ErrInsufficientBalance,
	ErrZeroBalance,
	ErrGuessAlreadyPlaced,
	ErrRoundNotOpen,
	ErrInvalidSide,
	ErrInvalidDeposit,
}

// IsAdvisory reports whether err is a player-facing gameplay refusal.
func IsAdvisory(err error) bool {
	for _, target := range advisories {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}
