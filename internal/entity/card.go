package entity

import (
	"fmt"
	"strings"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/apperror"
)

type Side string

const (
	SideEkki  Side = "ekki"
	SideBekki Side = "bekki"
)

var (
	EkkiCards  = []string{"A", "3", "5", "7", "9", "J", "K"}
	BekkiCards = []string{"2", "4", "6", "8", "10", "Q"}
)

// Deck returns all 13 card labels, ekki cards first.
func Deck() []string {
	deck := make([]string, 0, len(EkkiCards)+len(BekkiCards))
	deck = append(deck, EkkiCards...)
	deck = append(deck, BekkiCards...)

	return deck
}

// SideOf returns the set the card belongs to.
func SideOf(card string) (Side, error) {
	for _, c := range EkkiCards {
		if c == card {
			return SideEkki, nil
		}
	}

	for _, c := range BekkiCards {
		if c == card {
			return SideBekki, nil
		}
	}

	return "", fmt.Errorf("%w: %q", apperror.ErrUnknownCard, card)
}

func ParseSide(value string) (Side, error) {
	switch side := Side(strings.ToLower(strings.TrimSpace(value))); side {
	case SideEkki, SideBekki:
		return side, nil
	default:
		return "", apperror.ErrInvalidSide
	}
}
