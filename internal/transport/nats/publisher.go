package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/entity"
)

const (
	DefaultSubject = "ekkibekki.round.resolved"

	eventTypeRoundResolved = "round.resolved"
	reconnectWait          = 2 * time.Second
)

// Event is the envelope published for every settled round.
type Event struct {
	ID        string         `json:"event_id"`
	Type      string         `json:"event_type"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   *entity.Result `json:"payload"`
}

type Publisher struct {
	logger  *slog.Logger
	conn    *nats.Conn
	subject string
}

// Connect dials NATS with unlimited reconnects and logs connection state changes.
func Connect(logger *slog.Logger, url string) (*nats.Conn, error) {
	log := logger.With("component", "nats")

	opts := []nats.Option{
		nats.Name("ekkibekki-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Error("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("NATS error", "error", err)
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return conn, nil
}

func NewPublisher(logger *slog.Logger, conn *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}

	return &Publisher{
		logger:  logger.With("component", "round_publisher"),
		conn:    conn,
		subject: subject,
	}
}

// Record publishes the settled round.
func (that *Publisher) Record(_ context.Context, result *entity.Result) error {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventTypeRoundResolved,
		SessionID: result.SessionID,
		Timestamp: result.SettledAt.UTC(),
		Payload:   result,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal round event: %w", err)
	}

	if err = that.conn.Publish(that.subject, data); err != nil {
		return fmt.Errorf("failed to publish round event: %w", err)
	}

	that.logger.Debug("round event published", "subject", that.subject, "round_id", result.RoundID)

	return nil
}

// Close flushes pending events and closes the connection.
func (that *Publisher) Close() error {
	if err := that.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	return nil
}
