package ekkibekki

import (
	"fmt"
	"slices"
	"time"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/apperror"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/entity"
)

const (
	DefaultCountdown  = 10
	DefaultResetDelay = time.Second
	tickInterval      = time.Second
)

type Rules struct {
	Countdown  int
	ResetDelay time.Duration
	BetOptions []int
}

func DefaultRules() Rules {
	return Rules{
		Countdown:  DefaultCountdown,
		ResetDelay: DefaultResetDelay,
		BetOptions: slices.Clone(entity.DefaultBetOptions),
	}
}

func (that Rules) Validate() error {
	if that.Countdown <= 0 {
		return fmt.Errorf("%w: countdown %d", apperror.ErrInvalidRoundRule, that.Countdown)
	}

	if that.ResetDelay < 0 {
		return fmt.Errorf("%w: reset delay %s", apperror.ErrInvalidRoundRule, that.ResetDelay)
	}

	if len(that.BetOptions) == 0 {
		return fmt.Errorf("%w: no bet options", apperror.ErrInvalidRoundRule)
	}

	for _, option := range that.BetOptions {
		if option <= 0 {
			return fmt.Errorf("%w: bet option %d", apperror.ErrInvalidRoundRule, option)
		}
	}

	return nil
}
