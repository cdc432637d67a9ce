package ekkibekki

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/apperror"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/entity"
)

const subscriberBuffer = 8

type sessionStore interface {
	CreateOrUpdate(ctx context.Context, session *entity.Session) error
}

// ResultRecorder receives every settled round.
type ResultRecorder interface {
	Record(ctx context.Context, result *entity.Result) error
}

// Snapshot is the player-facing view of the engine. Card is set only once the round is resolved.
type Snapshot struct {
	SessionID       string       `json:"session_id"`
	RoundID         string       `json:"round_id,omitempty"`
	Phase           entity.Phase `json:"phase,omitempty"`
	TimeLeft        int          `json:"time_left"`
	Balance         int          `json:"balance"`
	Bet             int          `json:"bet,omitempty"`
	Guess           entity.Side  `json:"guess,omitempty"`
	Message         string       `json:"message,omitempty"`
	Card            string       `json:"card,omitempty"`
	DepositRequired bool         `json:"deposit_required"`
	BetOptions      []int        `json:"bet_options"`
}

type timerHandle struct {
	timer clockwork.Timer
}

// RoundEngine runs the bet → guess → countdown → payout → reset cycle for one session.
// All state changes go through the engine mutex; at most one countdown and one reset
// timer are armed at any time.
type RoundEngine struct {
	mu     sync.Mutex
	ctx    context.Context
	logger *slog.Logger
	clock  clockwork.Clock
	rules  Rules
	draw   Drawer

	sessions  sessionStore
	recorders []ResultRecorder

	session         *entity.Session
	round           *entity.Round
	timeLeft        int
	depositRequired bool
	lastActivity    time.Time
	stopped         bool

	countdown    *timerHandle
	pendingReset *timerHandle

	subscribers map[string]chan Snapshot
}

func NewRoundEngine(
	logger *slog.Logger,
	clock clockwork.Clock,
	rules Rules,
	session *entity.Session,
	sessions sessionStore,
	recorders ...ResultRecorder,
) *RoundEngine {
	return &RoundEngine{
		ctx:    context.Background(),
		logger: logger.With("component", "round_engine", "session_id", session.ID),
		clock:  clock,
		rules:  rules,
		draw:   DrawCard,

		sessions:  sessions,
		recorders: recorders,

		session:         session,
		depositRequired: session.IsEmpty(),
		lastActivity:    clock.Now(),
		subscribers:  make(map[string]chan Snapshot),
	}
}

// Start binds the engine to ctx and opens the first round.
func (that *RoundEngine) Start(ctx context.Context) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.stopped {
		return apperror.ErrEngineStopped
	}

	that.ctx = ctx

	return that.startRoundLocked()
}

// StartRound discards the current round and opens a new one.
func (that *RoundEngine) StartRound() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.stopped {
		return apperror.ErrEngineStopped
	}

	return that.startRoundLocked()
}

func (that *RoundEngine) PlaceBet(amount int) (Snapshot, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.ensureRoundLocked(); err != nil {
		return that.snapshotLocked(), err
	}

	that.lastActivity = that.clock.Now()

	if err := that.round.PlaceBet(amount, that.rules.BetOptions, that.session.Balance); err != nil {
		that.round.Message = advisoryMessage(err)
		that.broadcastLocked()

		return that.snapshotLocked(), err
	}

	that.round.Message = ""
	that.broadcastLocked()

	return that.snapshotLocked(), nil
}

func (that *RoundEngine) PlaceGuess(side entity.Side) (Snapshot, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.ensureRoundLocked(); err != nil {
		return that.snapshotLocked(), err
	}

	that.lastActivity = that.clock.Now()

	if err := that.round.PlaceGuess(side, that.session.Balance); err != nil {
		that.round.Message = advisoryMessage(err)
		that.broadcastLocked()

		return that.snapshotLocked(), err
	}

	that.round.Message = ""
	that.logger.Debug("guess placed", "round_id", that.round.ID, "side", side, "bet", that.round.Bet)
	that.broadcastLocked()

	return that.snapshotLocked(), nil
}

// Deposit credits the session balance and clears the deposit prompt.
func (that *RoundEngine) Deposit(amount int) (Snapshot, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.stopped {
		return that.snapshotLocked(), apperror.ErrEngineStopped
	}

	if amount <= 0 {
		return that.snapshotLocked(), apperror.ErrInvalidDeposit
	}

	that.lastActivity = that.clock.Now()

	updated := &entity.Session{ID: that.session.ID, Balance: that.session.Balance}
	updated.Credit(amount)

	if err := that.sessions.CreateOrUpdate(that.ctx, updated); err != nil {
		return that.snapshotLocked(), fmt.Errorf("failed to save deposit: %w", err)
	}

	that.session.Balance = updated.Balance
	that.depositRequired = false
	that.broadcastLocked()

	that.logger.Info("deposit accepted", "amount", amount, "balance", that.session.Balance)

	return that.snapshotLocked(), nil
}

// Tick advances the countdown by one second and resolves the round when it reaches zero.
func (that *RoundEngine) Tick() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.tickLocked()
}

func (that *RoundEngine) Snapshot() Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.snapshotLocked()
}

// Subscribe registers a listener; the current snapshot is delivered immediately.
// A subscriber that does not keep up is dropped and its channel closed.
func (that *RoundEngine) Subscribe(id string) <-chan Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	ch := make(chan Snapshot, subscriberBuffer)
	if that.stopped {
		close(ch)
		return ch
	}

	if existing, ok := that.subscribers[id]; ok {
		close(existing)
	}

	that.subscribers[id] = ch
	ch <- that.snapshotLocked()

	return ch
}

func (that *RoundEngine) Unsubscribe(id string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if ch, ok := that.subscribers[id]; ok {
		close(ch)
		delete(that.subscribers, id)
	}
}

func (that *RoundEngine) SessionID() string {
	return that.session.ID
}

// Idle reports whether no player action happened for at least d and nobody is subscribed.
func (that *RoundEngine) Idle(d time.Duration) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.subscribers) == 0 && that.clock.Since(that.lastActivity) >= d
}

// Stop cancels every timer and closes all subscriber channels.
func (that *RoundEngine) Stop() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.stopped {
		return
	}

	that.stopped = true
	that.stopCountdownLocked()
	that.stopResetLocked()

	for id, ch := range that.subscribers {
		close(ch)
		delete(that.subscribers, id)
	}

	that.logger.Info("round engine stopped")
}

func (that *RoundEngine) ensureRoundLocked() error {
	if that.stopped {
		return apperror.ErrEngineStopped
	}

	if that.round == nil {
		return apperror.ErrRoundNotOpen
	}

	return nil
}

func (that *RoundEngine) startRoundLocked() error {
	that.stopResetLocked()
	that.stopCountdownLocked()

	card, err := that.draw()
	if err != nil {
		return fmt.Errorf("failed to start round: %w", err)
	}

	that.round = entity.NewRound(uuid.NewString(), card, that.clock.Now())
	that.timeLeft = that.rules.Countdown

	that.armCountdownLocked()
	that.broadcastLocked()

	that.logger.Debug("round started", "round_id", that.round.ID)

	return nil
}

func (that *RoundEngine) tickLocked() {
	if that.stopped || that.round == nil || that.round.IsResolved() {
		return
	}

	that.stopCountdownLocked()

	that.timeLeft--
	if that.timeLeft <= 0 {
		that.timeLeft = 0
		that.resolveLocked()

		return
	}

	that.armCountdownLocked()
	that.broadcastLocked()
}

func (that *RoundEngine) resolveLocked() {
	log := that.logger.With("method", "resolve", "round_id", that.round.ID)

	that.stopCountdownLocked()

	balanceBefore := that.session.Balance

	result, err := that.round.Resolve(that.session, that.clock.Now())
	if err != nil {
		log.Error("failed to resolve round", "error", err)
		that.round.Phase = entity.PhaseResolved
		that.scheduleResetLocked()
		that.broadcastLocked()

		return
	}

	if result.BalanceAfter != balanceBefore {
		that.persistLocked()
	}

	// a session reloaded at zero keeps prompting even when nobody guessed
	that.depositRequired = that.session.IsEmpty()
	result.DepositRequired = that.depositRequired

	if that.unattendedLocked() {
		log.Debug("unattended round not recorded")
	} else {
		that.recordLocked(result)
	}

	that.scheduleResetLocked()
	that.broadcastLocked()

	log.Info("round resolved",
		"outcome", result.Outcome,
		"card", result.Card,
		"bet", result.Bet,
		"balance", result.BalanceAfter,
	)
}

// unattendedLocked reports a round nobody watched or played.
func (that *RoundEngine) unattendedLocked() bool {
	return len(that.subscribers) == 0 && that.round.Bet == 0 && !that.round.HasGuess()
}

func (that *RoundEngine) recordLocked(result *entity.Result) {
	for _, recorder := range that.recorders {
		if err := recorder.Record(that.ctx, result); err != nil {
			that.logger.Error("failed to record round result", "round_id", result.RoundID, "error", err)
		}
	}
}

func (that *RoundEngine) persistLocked() {
	session := &entity.Session{ID: that.session.ID, Balance: that.session.Balance}

	if err := that.sessions.CreateOrUpdate(that.ctx, session); err != nil {
		that.logger.Error("failed to save session balance", "error", err)
	}
}

func (that *RoundEngine) armCountdownLocked() {
	handle := &timerHandle{}
	handle.timer = that.clock.AfterFunc(tickInterval, func() {
		that.onCountdown(handle)
	})

	that.countdown = handle
}

func (that *RoundEngine) onCountdown(handle *timerHandle) {
	that.mu.Lock()
	defer that.mu.Unlock()

	// a handle that was replaced or stopped must not touch the current round
	if that.countdown != handle {
		return
	}

	that.countdown = nil
	that.tickLocked()
}

func (that *RoundEngine) stopCountdownLocked() {
	if that.countdown != nil {
		that.countdown.timer.Stop()
		that.countdown = nil
	}
}

func (that *RoundEngine) scheduleResetLocked() {
	that.stopResetLocked()

	handle := &timerHandle{}
	handle.timer = that.clock.AfterFunc(that.rules.ResetDelay, func() {
		that.onReset(handle)
	})

	that.pendingReset = handle
}

func (that *RoundEngine) onReset(handle *timerHandle) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.pendingReset != handle {
		return
	}

	that.pendingReset = nil

	if err := that.startRoundLocked(); err != nil {
		that.logger.Error("failed to start next round", "error", err)
	}
}

func (that *RoundEngine) stopResetLocked() {
	if that.pendingReset != nil {
		that.pendingReset.timer.Stop()
		that.pendingReset = nil
	}
}

func (that *RoundEngine) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		SessionID:       that.session.ID,
		TimeLeft:        that.timeLeft,
		Balance:         that.session.Balance,
		DepositRequired: that.depositRequired,
		BetOptions:      slices.Clone(that.rules.BetOptions),
	}

	if that.round == nil {
		return snapshot
	}

	snapshot.RoundID = that.round.ID
	snapshot.Phase = that.round.Phase
	snapshot.Bet = that.round.Bet
	snapshot.Guess = that.round.Guess
	snapshot.Message = that.round.Message

	if that.round.IsResolved() {
		snapshot.Card = that.round.Card
	}

	return snapshot
}

func (that *RoundEngine) broadcastLocked() {
	if len(that.subscribers) == 0 {
		return
	}

	snapshot := that.snapshotLocked()

	for id, ch := range that.subscribers {
		select {
		case ch <- snapshot:
		default:
			that.logger.Warn("dropping slow subscriber", "subscriber", id)
			close(ch)
			delete(that.subscribers, id)
		}
	}
}

// advisoryMessage turns an advisory error into the sentence shown to the player.
func advisoryMessage(err error) string {
	text := err.Error()
	if text == "" {
		return ""
	}

	return strings.ToUpper(text[:1]) + text[1:] + "."
}
