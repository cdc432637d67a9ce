package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/ekkibekki"
)

const (
	actionRoundState     = "round:state"
	actionRoundBet       = "round:bet"
	actionRoundGuess     = "round:guess"
	actionSessionDeposit = "session:deposit"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RequestPayload struct {
	Amount int    `json:"amount,omitempty"`
	Side   string `json:"side,omitempty"`
}

type ErrorPayload struct {
	Error string              `json:"error"`
	State *ekkibekki.Snapshot `json:"state,omitempty"`
}

func newMessage(action string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Message{Action: action, Payload: raw})
}
