package rest

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

func (m *mockGameManager) State(ctx context.Context, sessionID string) (ekkibekki.Snapshot, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(ekkibekki.Snapshot), args.Error(1)
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

func (m *mockGameManager) History(ctx context.Context, sessionID string, limit int) ([]*entity.Result, error) {
	args := m.Called(ctx, sessionID, limit)
	results, _ := args.Get(0).([]*entity.Result)
	return results, args.Error(1)
}

func newTestServer(t *testing.T) (http.Handler, *mockGameManager) {
	t.Helper()

	manager := &mockGameManager{}
	server := New(slog.New(slog.NewJSONHandler(io.Discard, nil)), manager, nil)

	return server.Handler(), manager
}

func doRequest(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func openSnapshot(sessionID string) ekkibekki.Snapshot {
	return ekkibekki.Snapshot{
		SessionID:  sessionID,
		RoundID:    "r1",
		Phase:      entity.PhaseOpen,
		TimeLeft:   10,
		Balance:    100,
		BetOptions: entity.DefaultBetOptions,
	}
}

func TestPing(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doRequest(handler, http.MethodGet, "/ping", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestCreateSession(t *testing.T) {
	t.Run("Creates a session without a body", func(t *testing.T) {
		// Given: a manager that creates a session
		handler, manager := newTestServer(t)
		manager.On("State", mock.Anything, "").Return(openSnapshot("generated"), nil).Once()

		// When: POST /api/sessions is called without a body
		rec := doRequest(handler, http.MethodPost, "/api/sessions", "")

		// Then: the new snapshot is returned
		require.Equal(t, http.StatusCreated, rec.Code)

		var snapshot ekkibekki.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
		assert.Equal(t, "generated", snapshot.SessionID)
		assert.Empty(t, snapshot.Card)
	})

	t.Run("Restores a session by id", func(t *testing.T) {
		handler, manager := newTestServer(t)
		manager.On("State", mock.Anything, "s1").Return(openSnapshot("s1"), nil).Once()

		rec := doRequest(handler, http.MethodPost, "/api/sessions", `{"session_id":"s1"}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		manager.AssertExpectations(t)
	})

	t.Run("Rejects malformed JSON", func(t *testing.T) {
		handler, _ := newTestServer(t)

		rec := doRequest(handler, http.MethodPost, "/api/sessions", `{"session_id":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Hides infrastructure errors", func(t *testing.T) {
		handler, manager := newTestServer(t)
		manager.On("State", mock.Anything, "").Return(ekkibekki.Snapshot{}, errRedisDown).Once()

		rec := doRequest(handler, http.MethodPost, "/api/sessions", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
	})
}

func TestGetSession(t *testing.T) {
	handler, manager := newTestServer(t)
	manager.On("State", mock.Anything, "s1").Return(openSnapshot("s1"), nil).Once()

	rec := doRequest(handler, http.MethodGet, "/api/sessions/s1", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot ekkibekki.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, openSnapshot("s1"), snapshot)
}

func TestPlaceBet(t *testing.T) {
	t.Run("Returns the updated snapshot", func(t *testing.T) {
		handler, manager := newTestServer(t)

		snapshot := openSnapshot("s1")
		snapshot.Bet = 20
		manager.On("PlaceBet", mock.Anything, "s1", 20).Return(snapshot, nil).Once()

		rec := doRequest(handler, http.MethodPost, "/api/sessions/s1/bet", `{"amount":20}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"bet":20`)
	})

	t.Run("Maps advisory errors to 422 with the state", func(t *testing.T) {
		// Given: a bet the balance cannot cover
		handler, manager := newTestServer(t)

		snapshot := openSnapshot("s1")
		snapshot.Message = "Insufficient balance to place the bet."
		manager.On("PlaceBet", mock.Anything, "s1", 100).Return(snapshot, apperror.ErrInsufficientBalance).Once()

		// When: the bet is posted
		rec := doRequest(handler, http.MethodPost, "/api/sessions/s1/bet", `{"amount":100}`)

		// Then: the error and the round state come back
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperror.ErrInsufficientBalance.Error(), resp.Error)
		require.NotNil(t, resp.State)
		assert.Equal(t, "Insufficient balance to place the bet.", resp.State.Message)
	})

	t.Run("Rejects unknown fields", func(t *testing.T) {
		handler, _ := newTestServer(t)

		rec := doRequest(handler, http.MethodPost, "/api/sessions/s1/bet", `{"stake":20}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPlaceGuess(t *testing.T) {
	t.Run("Accepts a side in any case", func(t *testing.T) {
		handler, manager := newTestServer(t)

		snapshot := openSnapshot("s1")
		snapshot.Phase = entity.PhaseLocked
		snapshot.Guess = entity.SideBekki
		manager.On("PlaceGuess", mock.Anything, "s1", entity.SideBekki).Return(snapshot, nil).Once()

		rec := doRequest(handler, http.MethodPost, "/api/sessions/s1/guess", `{"side":"Bekki"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"phase":"locked"`)
	})

	t.Run("Rejects an unknown side", func(t *testing.T) {
		handler, manager := newTestServer(t)

		rec := doRequest(handler, http.MethodPost, "/api/sessions/s1/guess", `{"side":"red"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		manager.AssertNotCalled(t, "PlaceGuess", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Maps a stopped engine to 409", func(t *testing.T) {
		handler, manager := newTestServer(t)
		manager.On("PlaceGuess", mock.Anything, "s1", entity.SideEkki).Return(ekkibekki.Snapshot{}, apperror.ErrEngineStopped).Once()

		rec := doRequest(handler, http.MethodPost, "/api/sessions/s1/guess", `{"side":"ekki"}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestDeposit(t *testing.T) {
	t.Run("Credits the balance", func(t *testing.T) {
		handler, manager := newTestServer(t)

		snapshot := openSnapshot("s1")
		snapshot.Balance = 150
		manager.On("Deposit", mock.Anything, "s1", 50).Return(snapshot, nil).Once()

		rec := doRequest(handler, http.MethodPost, "/api/sessions/s1/deposit", `{"amount":50}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"balance":150`)
	})

	t.Run("Rejects a non-positive amount", func(t *testing.T) {
		handler, manager := newTestServer(t)
		manager.On("Deposit", mock.Anything, "s1", -5).Return(openSnapshot("s1"), apperror.ErrInvalidDeposit).Once()

		rec := doRequest(handler, http.MethodPost, "/api/sessions/s1/deposit", `{"amount":-5}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestHistory(t *testing.T) {
	t.Run("Lists results with the requested limit", func(t *testing.T) {
		handler, manager := newTestServer(t)

		results := []*entity.Result{{SessionID: "s1", RoundID: "r1", Card: "J", Outcome: entity.OutcomeWin}}
		manager.On("History", mock.Anything, "s1", 5).Return(results, nil).Once()

		rec := doRequest(handler, http.MethodGet, "/api/sessions/s1/history?limit=5", "")

		require.Equal(t, http.StatusOK, rec.Code)

		var resp historyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "s1", resp.SessionID)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "r1", resp.Results[0].RoundID)
	})

	t.Run("Returns an empty list instead of null", func(t *testing.T) {
		handler, manager := newTestServer(t)
		manager.On("History", mock.Anything, "s1", 0).Return(nil, nil).Once()

		rec := doRequest(handler, http.MethodGet, "/api/sessions/s1/history", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"session_id":"s1","results":[]}`, rec.Body.String())
	})

	t.Run("Rejects a malformed limit", func(t *testing.T) {
		handler, _ := newTestServer(t)

		rec := doRequest(handler, http.MethodGet, "/api/sessions/s1/history?limit=ten", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Reports a missing ledger", func(t *testing.T) {
		handler, manager := newTestServer(t)
		manager.On("History", mock.Anything, "s1", 0).Return(nil, apperror.ErrHistoryDisabled).Once()

		rec := doRequest(handler, http.MethodGet, "/api/sessions/s1/history", "")

		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}

func TestCORS(t *testing.T) {
	handler, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
