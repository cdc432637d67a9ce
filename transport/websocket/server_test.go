package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/apperror"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/ekkibekki"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/entity"
)

var errRedisDown = errors.New("redis down")

type mockGameManager struct {
	mock.Mock
}

func (m *mockGameManager) Subscribe(ctx context.Context, sessionID, connID string) (<-chan ekkibekki.Snapshot, error) {
	args := m.Called(ctx, sessionID, connID)
	updates, _ := args.Get(0).(<-chan ekkibekki.Snapshot)
	return updates, args.Error(1)
}

func (m *mockGameManager) Unsubscribe(sessionID, connID string) {
	m.Called(sessionID, connID)
}

func (m *mockGameManager) PlaceBet(ctx context.Context, sessionID string, amount int) (ekkibekki.Snapshot, error) {
	args := m.Called(ctx, sessionID, amount)
	return args.Get(0).(ekkibekki.Snapshot), args.Error(1)
}

func (m *mockGameManager) PlaceGuess(ctx context.Context, sessionID string, side entity.Side) (ekkibekki.Snapshot, error) {
	args := m.Called(ctx, sessionID, side)
	return args.Get(0).(ekkibekki.Snapshot), args.Error(1)
}

func (m *mockGameManager) Deposit(ctx context.Context, sessionID string, amount int) (ekkibekki.Snapshot, error) {
	args := m.Called(ctx, sessionID, amount)
	return args.Get(0).(ekkibekki.Snapshot), args.Error(1)
}

func startServer(t *testing.T, manager *mockGameManager) *httptest.Server {
	t.Helper()

	server := New(slog.New(slog.NewJSONHandler(io.Discard, nil)), manager, nil)
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	return httpServer
}

func dial(t *testing.T, httpServer *httptest.Server, query string) (*websocket.Conn, *http.Response) {
	t.Helper()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws" + query

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, resp
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var message Message
	require.NoError(t, conn.ReadJSON(&message))

	return message
}

func subscription(snapshots ...ekkibekki.Snapshot) chan ekkibekki.Snapshot {
	updates := make(chan ekkibekki.Snapshot, 8)
	for _, snapshot := range snapshots {
		updates <- snapshot
	}

	return updates
}

func TestServer_StatePush(t *testing.T) {
	t.Run("Pushes every snapshot of the session", func(t *testing.T) {
		// Given: a session whose engine publishes two states
		manager := &mockGameManager{}
		updates := subscription(
			ekkibekki.Snapshot{SessionID: "s1", Phase: entity.PhaseOpen, TimeLeft: 10, Balance: 100},
			ekkibekki.Snapshot{SessionID: "s1", Phase: entity.PhaseOpen, TimeLeft: 9, Balance: 100},
		)
		manager.On("Subscribe", mock.Anything, "s1", mock.Anything).Return((<-chan ekkibekki.Snapshot)(updates), nil).Once()
		manager.On("Unsubscribe", "s1", mock.Anything).Return().Maybe()

		httpServer := startServer(t, manager)

		// When: the client connects
		conn, _ := dial(t, httpServer, "?session_id=s1")

		// Then: it receives both states in order
		for _, timeLeft := range []int{10, 9} {
			message := readMessage(t, conn)
			assert.Equal(t, actionRoundState, message.Action)

			var snapshot ekkibekki.Snapshot
			require.NoError(t, json.Unmarshal(message.Payload, &snapshot))
			assert.Equal(t, timeLeft, snapshot.TimeLeft)
		}
	})

	t.Run("Sets a session cookie for new players", func(t *testing.T) {
		manager := &mockGameManager{}
		manager.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).
			Return((<-chan ekkibekki.Snapshot)(subscription()), nil).Once()
		manager.On("Unsubscribe", mock.Anything, mock.Anything).Return().Maybe()

		httpServer := startServer(t, manager)

		_, resp := dial(t, httpServer, "")

		cookies := resp.Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, sessionCookie, cookies[0].Name)
		assert.NotEmpty(t, cookies[0].Value)
	})

	t.Run("Closes the connection when the session is unavailable", func(t *testing.T) {
		manager := &mockGameManager{}
		manager.On("Subscribe", mock.Anything, "s1", mock.Anything).Return(nil, errRedisDown).Once()

		httpServer := startServer(t, manager)
		conn, _ := dial(t, httpServer, "?session_id=s1")

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, _, err := conn.ReadMessage()

		require.Error(t, err)
		assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr))
	})
}

func TestServer_Actions(t *testing.T) {
	setup := func(t *testing.T) (*mockGameManager, *websocket.Conn) {
		t.Helper()

		manager := &mockGameManager{}
		updates := subscription(ekkibekki.Snapshot{SessionID: "s1", Phase: entity.PhaseOpen, TimeLeft: 10, Balance: 100})
		manager.On("Subscribe", mock.Anything, "s1", mock.Anything).Return((<-chan ekkibekki.Snapshot)(updates), nil).Once()
		manager.On("Unsubscribe", "s1", mock.Anything).Return().Maybe()

		conn, _ := dial(t, startServer(t, manager), "?session_id=s1")
		require.Equal(t, actionRoundState, readMessage(t, conn).Action)

		return manager, conn
	}

	t.Run("Advisory refusals come back with the state", func(t *testing.T) {
		// Given: a bet the balance cannot cover
		manager, conn := setup(t)

		snapshot := ekkibekki.Snapshot{SessionID: "s1", Balance: 30, Message: "Insufficient balance to place the bet."}
		manager.On("PlaceBet", mock.Anything, "s1", 50).Return(snapshot, apperror.ErrInsufficientBalance).Once()

		// When: the client bets
		require.NoError(t, conn.WriteJSON(map[string]any{"action": actionRoundBet, "payload": map[string]any{"amount": 50}}))

		// Then: the error reply carries the advisory and the state
		message := readMessage(t, conn)
		assert.Equal(t, actionRoundBet, message.Action)

		var payload ErrorPayload
		require.NoError(t, json.Unmarshal(message.Payload, &payload))
		assert.Equal(t, apperror.ErrInsufficientBalance.Error(), payload.Error)
		require.NotNil(t, payload.State)
		assert.Equal(t, "Insufficient balance to place the bet.", payload.State.Message)
	})

	t.Run("Guess side is validated before reaching the engine", func(t *testing.T) {
		manager, conn := setup(t)

		require.NoError(t, conn.WriteJSON(map[string]any{"action": actionRoundGuess, "payload": map[string]any{"side": "middle"}}))

		message := readMessage(t, conn)

		var payload ErrorPayload
		require.NoError(t, json.Unmarshal(message.Payload, &payload))
		assert.Equal(t, apperror.ErrInvalidSide.Error(), payload.Error)
		manager.AssertNotCalled(t, "PlaceGuess", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Successful actions send no direct reply", func(t *testing.T) {
		manager, conn := setup(t)

		manager.On("Deposit", mock.Anything, "s1", 100).Return(ekkibekki.Snapshot{SessionID: "s1", Balance: 200}, nil).Once()
		manager.On("PlaceGuess", mock.Anything, "s1", entity.SideEkki).Return(ekkibekki.Snapshot{}, errRedisDown).Once()

		require.NoError(t, conn.WriteJSON(map[string]any{"action": actionSessionDeposit, "payload": map[string]any{"amount": 100}}))
		require.NoError(t, conn.WriteJSON(map[string]any{"action": actionRoundGuess, "payload": map[string]any{"side": "ekki"}}))

		// the first reply on the wire belongs to the failing guess
		message := readMessage(t, conn)
		assert.Equal(t, actionRoundGuess, message.Action)
		assert.JSONEq(t, `{"error":"internal error"}`, string(message.Payload))
		manager.AssertCalled(t, "Deposit", mock.Anything, "s1", 100)
	})

	t.Run("Unknown actions are reported", func(t *testing.T) {
		_, conn := setup(t)

		require.NoError(t, conn.WriteJSON(map[string]any{"action": "round:skip"}))

		message := readMessage(t, conn)
		assert.Equal(t, "round:skip", message.Action)
		assert.JSONEq(t, `{"error":"unknown action"}`, string(message.Payload))
	})
}

func TestServer_Unsubscribe(t *testing.T) {
	// Given: a connected client
	manager := &mockGameManager{}
	unsubscribed := make(chan struct{})

	manager.On("Subscribe", mock.Anything, "s1", mock.Anything).
		Return((<-chan ekkibekki.Snapshot)(subscription()), nil).Once()
	manager.On("Unsubscribe", "s1", mock.Anything).Return().Run(func(mock.Arguments) {
		close(unsubscribed)
	}).Once()

	conn, _ := dial(t, startServer(t, manager), "?session_id=s1")

	// When: the client goes away
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	// Then: the subscription is released
	select {
	case <-unsubscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription was not released")
	}
}

func TestCheckOrigin(t *testing.T) {
	check := checkOrigin([]string{"https://ekkibekki.example"})

	allowed := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set("Origin", "https://ekkibekki.example")

	denied := httptest.NewRequest(http.MethodGet, "/ws", nil)
	denied.Header.Set("Origin", "https://evil.example")

	assert.True(t, check(allowed))
	assert.False(t, check(denied))
	assert.True(t, checkOrigin(nil)(denied))
}
