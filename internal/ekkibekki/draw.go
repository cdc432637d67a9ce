package ekkibekki

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/entity"
)

// Drawer picks the card for a new round.
type Drawer func() (string, error)

// DrawCard picks a card uniformly from the deck using crypto/rand.
func DrawCard() (string, error) {
	deck := entity.Deck()

	idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(deck))))
	if err != nil {
		return "", fmt.Errorf("failed to draw card: %w", err)
	}

	return deck[idx.Int64()], nil
}
