package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/pkg/database"
)

// fixed-width so lexical order matches time order
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	name       TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	seq    INTEGER PRIMARY KEY AUTOINCREMENT,
	id     TEXT NOT NULL UNIQUE,
	ticker TEXT NOT NULL,
	ts     TEXT NOT NULL,
	body   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_ticker ON decisions (ticker, seq);
CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions (ts);
`

type sqliteBackend struct {
	db *database.SQLite
	mu sync.Mutex
}

// NewSQLiteStore creates the schema if needed and returns a store over db
func NewSQLiteStore(ctx context.Context, db *database.SQLite) (*Store, error) {
	if _, err := db.Conn.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return newStore(&sqliteBackend{db: db}), nil
}

func (s *sqliteBackend) name() string { return "sqlite" }

func (s *sqliteBackend) close() error { return s.db.Close() }

func (s *sqliteBackend) read(ctx context.Context, doc string) ([]byte, error) {
	var body string
	err := s.db.Conn.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, doc).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func (s *sqliteBackend) update(ctx context.Context, doc string, fn func([]byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw []byte
	var body string
	err = tx.QueryRowContext(ctx, `SELECT body FROM documents WHERE name = ?`, doc).Scan(&body)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		raw = []byte(body)
	}

	next, err := fn(raw)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		doc, string(next), time.Now().UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteBackend) insertDecision(ctx context.Context, rec decisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Conn.ExecContext(ctx,
		`INSERT INTO decisions (id, ticker, ts, body) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Ticker, rec.Timestamp.UTC().Format(sqliteTimeLayout), string(rec.Body),
	)
	return err
}

func (s *sqliteBackend) listDecisions(ctx context.Context, f DecisionFilter) ([][]byte, error) {
	since := ""
	if !f.Since.IsZero() {
		since = f.Since.UTC().Format(sqliteTimeLayout)
	}
	limit := -1
	if f.Limit > 0 {
		limit = f.Limit
	}

	rows, err := s.db.Conn.QueryContext(ctx, `
		SELECT body FROM (
			SELECT seq, body FROM decisions
			WHERE (? = '' OR ticker = ?) AND ts >= ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC`,
		f.Ticker, f.Ticker, since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		out = append(out, []byte(body))
	}
	return out, rows.Err()
}

func (s *sqliteBackend) updateDecision(ctx context.Context, id string, fn func([]byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var body string
	err = tx.QueryRowContext(ctx, `SELECT body FROM decisions WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("decision %s: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return err
	}

	next, err := fn([]byte(body))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE decisions SET body = ? WHERE id = ?`, string(next), id); err != nil {
		return err
	}
	return tx.Commit()
}
