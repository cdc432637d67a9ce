package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/apperror"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/ekkibekki"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/entity"
)

const maxBodyBytes = 1 << 10

type createSessionRequest struct {
	SessionID string `json:"session_id"`
}

type amountRequest struct {
	Amount int `json:"amount"`
}

type guessRequest struct {
	Side string `json:"side"`
}

type errorResponse struct {
	Error string              `json:"error"`
	State *ekkibekki.Snapshot `json:"state,omitempty"`
}

type historyResponse struct {
	SessionID string           `json:"session_id"`
	Results   []*entity.Result `json:"results"`
}

func (that *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snapshot, err := that.manager.State(r.Context(), req.SessionID)
	if err != nil {
		that.handleError(w, "createSession", snapshot, err)
		return
	}

	writeJSON(w, http.StatusCreated, snapshot)
}

func (that *Server) getSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := that.manager.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		that.handleError(w, "getSession", snapshot, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (that *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snapshot, err := that.manager.PlaceBet(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		that.handleError(w, "placeBet", snapshot, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (that *Server) placeGuess(w http.ResponseWriter, r *http.Request) {
	var req guessRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side, err := entity.ParseSide(req.Side)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	snapshot, err := that.manager.PlaceGuess(r.Context(), chi.URLParam(r, "id"), side)
	if err != nil {
		that.handleError(w, "placeGuess", snapshot, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (that *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snapshot, err := that.manager.Deposit(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		that.handleError(w, "deposit", snapshot, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func (that *Server) history(w http.ResponseWriter, r *http.Request) {
	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}

		limit = parsed
	}

	sessionID := chi.URLParam(r, "id")

	results, err := that.manager.History(r.Context(), sessionID, limit)
	if err != nil {
		that.handleError(w, "history", ekkibekki.Snapshot{}, err)
		return
	}

	if results == nil {
		results = []*entity.Result{}
	}

	writeJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Results: results})
}

func (that *Server) handleError(w http.ResponseWriter, method string, snapshot ekkibekki.Snapshot, err error) {
	switch {
	case apperror.IsAdvisory(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), State: &snapshot})
	case errors.Is(err, apperror.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperror.ErrHistoryDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, apperror.ErrEngineStopped):
		writeError(w, http.StatusConflict, err.Error())
	default:
		that.logger.Error("request failed", "method", method, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	return decoder.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}
