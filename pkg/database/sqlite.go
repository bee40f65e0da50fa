package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/wonny/tradeloop/pkg/config"
)

// SQLite wraps a single-file embedded database used by the sqlite backend
type SQLite struct {
	Conn *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path with WAL
// journaling. A single writer connection keeps whole-document updates
// serialized at the driver level.
func OpenSQLite(path string) (*SQLite, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", absPath)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLite{Conn: conn, path: absPath}, nil
}

// Path returns the absolute database file path
func (s *SQLite) Path() string {
	return s.path
}

// Close closes the underlying connection
func (s *SQLite) Close() error {
	return s.Conn.Close()
}

// HealthCheck pings the file database
func (s *SQLite) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{
		Backend:   config.StoreSQLite,
		Timestamp: time.Now(),
	}

	start := time.Now()
	if err := s.Conn.PingContext(ctx); err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.ResponseTime = time.Since(start)

	stats := s.Conn.Stats()
	status.OpenConns = stats.OpenConnections
	status.IdleConns = stats.Idle
	status.Healthy = true
	return status, nil
}
