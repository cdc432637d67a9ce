package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/ekkibekki"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/entity"
	"github.com/rocketscienceinc/ekkibekki-backend/pkg/handlers"
)

const (
	sessionCookie  = "ekkibekki_session"
	cookieLifetime = 30 * 24 * time.Hour

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 10
	sendBuffer     = 16
)

type gameManager interface {
	Subscribe(ctx context.Context, sessionID, connID string) (<-chan ekkibekki.Snapshot, error)
	Unsubscribe(sessionID, connID string)

	PlaceBet(ctx context.Context, sessionID string, amount int) (ekkibekki.Snapshot, error)
	PlaceGuess(ctx context.Context, sessionID string, side entity.Side) (ekkibekki.Snapshot, error)
	Deposit(ctx context.Context, sessionID string, amount int) (ekkibekki.Snapshot, error)
}

type handlerFunc func(ctx context.Context, client *client, message *Message) error

type Server struct {
	logger   *slog.Logger
	manager  gameManager
	upgrader websocket.Upgrader

	handlers map[string]handlerFunc

	server *http.Server
}

func New(logger *slog.Logger, manager gameManager, allowedOrigins []string) *Server {
	server := &Server{
		logger:  logger.With("component", "websocket"),
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},

		handlers: make(map[string]handlerFunc),
	}

	server.handlers[actionRoundBet] = server.handleBet
	server.handlers[actionRoundGuess] = server.handleGuess
	server.handlers[actionSessionDeposit] = server.handleDeposit

	return server
}

func (that *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Get("/ws", that.upgradeToWebSocket)
	router.Get("/ping", handlers.Ping)

	return router
}

// Start - starts WebSocket server and blocks until it is shut down.
func (that *Server) Start(port string) error {
	that.server = &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := that.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) Shutdown(ctx context.Context) error {
	if that.server == nil {
		return nil
	}

	if err := that.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - upgrades the connection and binds it to the player session.
func (that *Server) upgradeToWebSocket(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	sessionID, header := that.sessionFromRequest(req)

	conn, err := that.upgrader.Upgrade(writer, req, header)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	ctx := context.WithoutCancel(req.Context())
	connID := uuid.NewString()

	updates, err := that.manager.Subscribe(ctx, sessionID, connID)
	if err != nil {
		log.Error("failed to subscribe to session", "session_id", sessionID, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(writeWait))
		_ = conn.Close()

		return
	}

	c := &client{
		id:        connID,
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}

	log.Info("WebSocket connection established", "session_id", sessionID, "conn_id", connID)

	go that.writePump(c, updates)
	that.readPump(ctx, c)

	that.manager.Unsubscribe(sessionID, connID)
	log.Info("WebSocket connection closed", "session_id", sessionID, "conn_id", connID)
}

// sessionFromRequest picks the session from the query, then the cookie, and
// generates a new one with a cookie otherwise.
func (that *Server) sessionFromRequest(req *http.Request) (string, http.Header) {
	if sessionID := req.URL.Query().Get("session_id"); sessionID != "" {
		return sessionID, nil
	}

	if cookie, err := req.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	sessionID := uuid.NewString()
	cookie := &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Expires:  time.Now().Add(cookieLifetime),
		Path:     "/",
		HttpOnly: true,
	}

	header := http.Header{}
	header.Add("Set-Cookie", cookie.String())

	that.logger.Info("session cookie not found, new one created", "session_id", sessionID)

	return sessionID, header
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		for _, candidate := range allowed {
			if candidate == "*" || candidate == origin {
				return true
			}
		}

		return false
	}
}
