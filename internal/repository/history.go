package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/entity"
)

type HistoryRepository interface {
	Record(ctx context.Context, result *entity.Result) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*entity.Result, error)
}

type dbHistory struct {
	pool *pgxpool.Pool
}

func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &dbHistory{
		pool: pool,
	}
}

// Record appends a settled round. Recording the same round twice is a no-op.
func (that *dbHistory) Record(ctx context.Context, result *entity.Result) error {
	query := `
		INSERT INTO round_results (
			round_id, session_id, card, guess, bet, outcome,
			balance_before, balance_after, message, deposit_required, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (round_id) DO NOTHING`

	_, err := that.pool.Exec(ctx, query,
		result.RoundID,
		result.SessionID,
		result.Card,
		string(result.Guess),
		result.Bet,
		string(result.Outcome),
		result.BalanceBefore,
		result.BalanceAfter,
		result.Message,
		result.DepositRequired,
		result.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert round result: %w", err)
	}

	return nil
}

// ListBySession returns the latest results of a session, newest first.
func (that *dbHistory) ListBySession(ctx context.Context, sessionID string, limit int) ([]*entity.Result, error) {
	query := `
		SELECT round_id, session_id, card, guess, bet, outcome,
		       balance_before, balance_after, message, deposit_required, settled_at
		  FROM round_results
		 WHERE session_id = $1
		 ORDER BY settled_at DESC, round_id
		 LIMIT $2`

	rows, err := that.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query round results: %w", err)
	}

	results, err := pgx.CollectRows(rows, scanResult)
	if err != nil {
		return nil, fmt.Errorf("failed to scan round results: %w", err)
	}

	return results, nil
}

func scanResult(row pgx.CollectableRow) (*entity.Result, error) {
	var (
		result  entity.Result
		guess   string
		outcome string
	)

	err := row.Scan(
		&result.RoundID,
		&result.SessionID,
		&result.Card,
		&guess,
		&result.Bet,
		&outcome,
		&result.BalanceBefore,
		&result.BalanceAfter,
		&result.Message,
		&result.DepositRequired,
		&result.SettledAt,
	)
	if err != nil {
		return nil, err
	}

	result.Guess = entity.Side(guess)
	result.Outcome = entity.Outcome(outcome)
	result.SettledAt = result.SettledAt.UTC()

	return &result, nil
}
