package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/ekkibekki"
)

type client struct {
	id        string
	sessionID string
	conn      *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// reply queues a message for the writer; it gives up once the connection is closing.
func (that *client) reply(data []byte) {
	select {
	case that.send <- data:
	case <-that.done:
	}
}

func (that *client) close() {
	that.closeOnce.Do(func() {
		close(that.done)
	})
}

// writePump is the only writer of the connection: state pushes, replies and pings.
func (that *Server) writePump(c *client, updates <-chan ekkibekki.Snapshot) {
	log := that.logger.With("method", "writePump", "conn_id", c.id)

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				// engine stopped or dropped this subscriber
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeWait))
				return
			}

			data, err := newMessage(actionRoundState, snapshot)
			if err != nil {
				log.Error("failed to marshal state", "error", err)
				continue
			}

			if err = that.write(c, websocket.TextMessage, data); err != nil {
				log.Debug("failed to write state", "error", err)
				return
			}

		case data := <-c.send:
			if err := that.write(c, websocket.TextMessage, data); err != nil {
				log.Debug("failed to write reply", "error", err)
				return
			}

		case <-ticker.C:
			if err := that.write(c, websocket.PingMessage, nil); err != nil {
				log.Debug("failed to send ping", "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

func (that *Server) write(c *client, messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}

	return c.conn.WriteMessage(messageType, data)
}

// readPump - processes messages from the client until the connection closes.
func (that *Server) readPump(ctx context.Context, c *client) {
	log := that.logger.With("method", "readPump", "conn_id", c.id)

	defer func() {
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error("error reading message", "error", err)
			}

			return
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Debug("failed to unmarshal message", "error", err)
			that.sendError(c, "", "invalid message", nil)

			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			that.sendError(c, message.Action, "unknown action", nil)
			continue
		}

		if err = handler(ctx, c, &message); err != nil && !errors.Is(err, errReplied) {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

func (that *Server) sendError(c *client, action, text string, state *ekkibekki.Snapshot) {
	data, err := newMessage(action, ErrorPayload{Error: text, State: state})
	if err != nil {
		that.logger.Error("failed to marshal error reply", "error", err)
		return
	}

	c.reply(data)
}
