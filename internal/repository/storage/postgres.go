package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS round_results (
	round_id         TEXT PRIMARY KEY,
	session_id       TEXT        NOT NULL,
	card             TEXT        NOT NULL,
	guess            TEXT        NOT NULL DEFAULT '',
	bet              INTEGER     NOT NULL DEFAULT 0,
	outcome          TEXT        NOT NULL,
	balance_before   INTEGER     NOT NULL,
	balance_after    INTEGER     NOT NULL,
	message          TEXT        NOT NULL,
	deposit_required BOOLEAN     NOT NULL DEFAULT FALSE,
	settled_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS round_results_session_settled_idx
	ON round_results (session_id, settled_at DESC);
`

type PostgresStorage struct {
	Connection *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("can't open database: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("can't connect to database: %w", err)
	}

	return &PostgresStorage{Connection: pool}, nil
}

// Init creates the round ledger schema.
func (that *PostgresStorage) Init(ctx context.Context) error {
	if _, err := that.Connection.Exec(ctx, schema); err != nil {
		return fmt.Errorf("can't create table: %w", err)
	}

	return nil
}

func (that *PostgresStorage) Close() {
	that.Connection.Close()
}
