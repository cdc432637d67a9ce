package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/apperror"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/ekkibekki"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/entity"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	minJanitorInterval  = time.Second
)

type sessionRepo interface {
	CreateOrUpdate(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
}

type historyRepo interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*entity.Result, error)
}

type Settings struct {
	Rules           ekkibekki.Rules
	StartingBalance int
	IdleTimeout     time.Duration
}

// GameManager keeps one running RoundEngine per session.
type GameManager struct {
	logger   *slog.Logger
	clock    clockwork.Clock
	settings Settings

	sessionRepo sessionRepo
	historyRepo historyRepo
	recorders   []ekkibekki.ResultRecorder

	mu      sync.Mutex
	engines map[string]*ekkibekki.RoundEngine
}

// NewGameManager builds the manager. historyRepo may be nil when no ledger is configured.
func NewGameManager(
	logger *slog.Logger,
	clock clockwork.Clock,
	settings Settings,
	sessionRepo sessionRepo,
	historyRepo historyRepo,
	recorders ...ekkibekki.ResultRecorder,
) *GameManager {
	return &GameManager{
		logger:   logger.With("component", "game_manager"),
		clock:    clock,
		settings: settings,

		sessionRepo: sessionRepo,
		historyRepo: historyRepo,
		recorders:   recorders,

		engines: make(map[string]*ekkibekki.RoundEngine),
	}
}

// Connect returns the running engine of the session, starting it on first use.
// An empty id creates a new session with a generated id.
// Storage calls run outside the manager lock; a concurrent start of the same session keeps the first engine.
func (that *GameManager) Connect(ctx context.Context, sessionID string) (*ekkibekki.RoundEngine, error) {
	if engine, ok := that.lookup(sessionID); ok {
		return engine, nil
	}

	session, err := that.getOrCreateSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create session: %w", err)
	}

	engine := ekkibekki.NewRoundEngine(that.logger, that.clock, that.settings.Rules, session, that.sessionRepo, that.recorders...)

	// the engine outlives the request that created it
	if err = engine.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("failed to start round engine: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if running, ok := that.engines[session.ID]; ok {
		engine.Stop()
		return running, nil
	}

	that.engines[session.ID] = engine

	that.logger.Info("round engine started", "session_id", session.ID, "balance", session.Balance)

	return engine, nil
}

// Subscribe registers connID on the session engine. The registration happens under the
// manager lock so the janitor cannot evict the engine in between.
func (that *GameManager) Subscribe(ctx context.Context, sessionID, connID string) (<-chan ekkibekki.Snapshot, error) {
	for {
		engine, err := that.Connect(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		that.mu.Lock()
		if that.engines[engine.SessionID()] == engine {
			updates := engine.Subscribe(connID)
			that.mu.Unlock()

			return updates, nil
		}
		that.mu.Unlock()

		if err = ctx.Err(); err != nil {
			return nil, fmt.Errorf("failed to subscribe: %w", err)
		}
	}
}

func (that *GameManager) Unsubscribe(sessionID, connID string) {
	that.mu.Lock()
	engine, ok := that.engines[sessionID]
	that.mu.Unlock()

	if ok {
		engine.Unsubscribe(connID)
	}
}

func (that *GameManager) PlaceBet(ctx context.Context, sessionID string, amount int) (ekkibekki.Snapshot, error) {
	engine, err := that.Connect(ctx, sessionID)
	if err != nil {
		return ekkibekki.Snapshot{}, err
	}

	return engine.PlaceBet(amount)
}

func (that *GameManager) PlaceGuess(ctx context.Context, sessionID string, side entity.Side) (ekkibekki.Snapshot, error) {
	engine, err := that.Connect(ctx, sessionID)
	if err != nil {
		return ekkibekki.Snapshot{}, err
	}

	return engine.PlaceGuess(side)
}

func (that *GameManager) Deposit(ctx context.Context, sessionID string, amount int) (ekkibekki.Snapshot, error) {
	engine, err := that.Connect(ctx, sessionID)
	if err != nil {
		return ekkibekki.Snapshot{}, err
	}

	return engine.Deposit(amount)
}

func (that *GameManager) State(ctx context.Context, sessionID string) (ekkibekki.Snapshot, error) {
	engine, err := that.Connect(ctx, sessionID)
	if err != nil {
		return ekkibekki.Snapshot{}, err
	}

	return engine.Snapshot(), nil
}

// History returns the settled rounds of a session, newest first.
func (that *GameManager) History(ctx context.Context, sessionID string, limit int) ([]*entity.Result, error) {
	if that.historyRepo == nil {
		return nil, apperror.ErrHistoryDisabled
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	limit = min(limit, maxHistoryLimit)

	results, err := that.historyRepo.ListBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list round history: %w", err)
	}

	return results, nil
}

// RunJanitor stops idle engines until ctx is done.
func (that *GameManager) RunJanitor(ctx context.Context) {
	interval := max(that.settings.IdleTimeout/2, minJanitorInterval)

	ticker := that.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			that.evictIdle()
		}
	}
}

// Shutdown stops every running engine.
func (that *GameManager) Shutdown() {
	that.mu.Lock()
	defer that.mu.Unlock()

	for id, engine := range that.engines {
		engine.Stop()
		delete(that.engines, id)
	}

	that.logger.Info("all round engines stopped")
}

func (that *GameManager) evictIdle() {
	if that.settings.IdleTimeout <= 0 {
		return
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	for id, engine := range that.engines {
		if !engine.Idle(that.settings.IdleTimeout) {
			continue
		}

		engine.Stop()
		delete(that.engines, id)

		that.logger.Info("idle session evicted", "session_id", id)
	}
}

func (that *GameManager) lookup(sessionID string) (*ekkibekki.RoundEngine, bool) {
	if sessionID == "" {
		return nil, false
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	engine, ok := that.engines[sessionID]

	return engine, ok
}

func (that *GameManager) getOrCreateSession(ctx context.Context, id string) (*entity.Session, error) {
	if id == "" {
		return that.createSession(ctx, uuid.NewString())
	}

	session, err := that.sessionRepo.GetByID(ctx, id)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		return that.createSession(ctx, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	session.ID = id
	session.Balance = entity.ClampBalance(session.Balance)

	return session, nil
}

func (that *GameManager) createSession(ctx context.Context, id string) (*entity.Session, error) {
	session := entity.NewSession(id, that.settings.StartingBalance)

	if err := that.sessionRepo.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}
