package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/pkg/database"
)

const postgresSchema = `
CREATE SCHEMA IF NOT EXISTS tradeloop;

CREATE TABLE IF NOT EXISTS tradeloop.documents (
	name       TEXT PRIMARY KEY,
	body       JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tradeloop.decisions (
	seq    BIGSERIAL PRIMARY KEY,
	id     TEXT NOT NULL UNIQUE,
	ticker TEXT NOT NULL,
	ts     TIMESTAMPTZ NOT NULL,
	body   JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_ticker ON tradeloop.decisions (ticker, seq);
CREATE INDEX IF NOT EXISTS idx_decisions_ts ON tradeloop.decisions (ts);
`

// postgresBackend serializes document writers with SELECT ... FOR UPDATE, so
// several processes can share one database
type postgresBackend struct {
	db *database.DB
}

// NewPostgresStore creates the schema if needed and returns a store over db
func NewPostgresStore(ctx context.Context, db *database.DB) (*Store, error) {
	if _, err := db.Pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return newStore(&postgresBackend{db: db}), nil
}

func (p *postgresBackend) name() string { return "postgres" }

func (p *postgresBackend) close() error {
	p.db.Close()
	return nil
}

func (p *postgresBackend) read(ctx context.Context, doc string) ([]byte, error) {
	var body []byte
	err := p.db.Pool.QueryRow(ctx, `SELECT body FROM tradeloop.documents WHERE name = $1`, doc).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return body, err
}

func (p *postgresBackend) update(ctx context.Context, doc string, fn func([]byte) ([]byte, error)) error {
	tx, err := p.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// 행을 먼저 만들어야 FOR UPDATE 잠금이 걸린다
	if _, err := tx.Exec(ctx,
		`INSERT INTO tradeloop.documents (name, body) VALUES ($1, NULL) ON CONFLICT (name) DO NOTHING`, doc,
	); err != nil {
		return err
	}

	var raw []byte
	if err := tx.QueryRow(ctx,
		`SELECT body FROM tradeloop.documents WHERE name = $1 FOR UPDATE`, doc,
	).Scan(&raw); err != nil {
		return err
	}

	next, err := fn(raw)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE tradeloop.documents SET body = $2::jsonb, updated_at = now() WHERE name = $1`, doc, string(next),
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *postgresBackend) insertDecision(ctx context.Context, rec decisionRecord) error {
	_, err := p.db.Pool.Exec(ctx,
		`INSERT INTO tradeloop.decisions (id, ticker, ts, body) VALUES ($1, $2, $3, $4::jsonb)`,
		rec.ID, rec.Ticker, rec.Timestamp, string(rec.Body),
	)
	return err
}

func (p *postgresBackend) listDecisions(ctx context.Context, f DecisionFilter) ([][]byte, error) {
	query := `
		SELECT body FROM (
			SELECT seq, body FROM tradeloop.decisions
			WHERE ($1 = '' OR ticker = $1) AND ($2::timestamptz IS NULL OR ts >= $2)
			ORDER BY seq DESC
			LIMIT $3
		) recent ORDER BY seq ASC`

	var since interface{}
	if !f.Since.IsZero() {
		since = f.Since
	}
	var limit interface{}
	if f.Limit > 0 {
		limit = f.Limit
	}

	rows, err := p.db.Pool.Query(ctx, query, f.Ticker, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

func (p *postgresBackend) updateDecision(ctx context.Context, id string, fn func([]byte) ([]byte, error)) error {
	tx, err := p.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT body FROM tradeloop.decisions WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("decision %s: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return err
	}

	next, err := fn(raw)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE tradeloop.decisions SET body = $2::jsonb WHERE id = $1`, id, string(next),
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
