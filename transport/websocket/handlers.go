package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/apperror"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/ekkibekki"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/entity"
)

// errReplied marks a failure the client has already been told about.
var errReplied = errors.New("error reply sent")

func (that *Server) handleBet(ctx context.Context, c *client, msg *Message) error {
	payload, err := that.decodePayload(c, msg)
	if err != nil {
		return err
	}

	snapshot, err := that.manager.PlaceBet(ctx, c.sessionID, payload.Amount)

	return that.replyOnError(c, msg.Action, snapshot, err)
}

func (that *Server) handleGuess(ctx context.Context, c *client, msg *Message) error {
	payload, err := that.decodePayload(c, msg)
	if err != nil {
		return err
	}

	side, err := entity.ParseSide(payload.Side)
	if err != nil {
		that.sendError(c, msg.Action, err.Error(), nil)
		return errReplied
	}

	snapshot, err := that.manager.PlaceGuess(ctx, c.sessionID, side)

	return that.replyOnError(c, msg.Action, snapshot, err)
}

func (that *Server) handleDeposit(ctx context.Context, c *client, msg *Message) error {
	payload, err := that.decodePayload(c, msg)
	if err != nil {
		return err
	}

	snapshot, err := that.manager.Deposit(ctx, c.sessionID, payload.Amount)

	return that.replyOnError(c, msg.Action, snapshot, err)
}

func (that *Server) decodePayload(c *client, msg *Message) (*RequestPayload, error) {
	var payload RequestPayload

	if len(msg.Payload) == 0 {
		return &payload, nil
	}

	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		that.sendError(c, msg.Action, "invalid payload", nil)
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &payload, nil
}

// replyOnError answers failed actions; successful ones are visible through the next state push.
func (that *Server) replyOnError(c *client, action string, snapshot ekkibekki.Snapshot, err error) error {
	if err == nil {
		return nil
	}

	if apperror.IsAdvisory(err) {
		that.sendError(c, action, err.Error(), &snapshot)
		return errReplied
	}

	that.sendError(c, action, "internal error", nil)

	return fmt.Errorf("failed to handle %s: %w", action, err)
}
