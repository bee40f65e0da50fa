// Package store persists the pipeline's state surfaces: decisions, scan
// state, activity log, background tasks, learning state and weight history.
// Every read-modify-write of a document is serialized by the backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/pkg/config"
	"github.com/wonny/tradeloop/pkg/database"
)

// DecisionFilter narrows ListDecisions. Zero values match everything.
type DecisionFilter struct {
	Ticker string
	Since  time.Time
	Limit  int // most recent N, returned oldest first
}

// DecisionStore persists Decisions
type DecisionStore interface {
	SaveDecision(ctx context.Context, d *contracts.Decision) error
	ListDecisions(ctx context.Context, f DecisionFilter) ([]contracts.Decision, error)
	AttachEvaluation(ctx context.Context, id string, ev contracts.Evaluation) error
}

// ScanStateStore persists the agent's ScanState. TryBeginScan is the only way
// to raise the in-progress flag.
type ScanStateStore interface {
	ScanState(ctx context.Context) (*contracts.ScanState, error)
	TryBeginScan(ctx context.Context, universe string, now time.Time) (bool, *contracts.ScanState, error)
	FinishScan(ctx context.Context, universe string, now time.Time, analyzed, saved int) (*contracts.ScanState, error)
	UpdateScanState(ctx context.Context, fn func(*contracts.ScanState) error) (*contracts.ScanState, error)
}

// ActivityStore persists the capped activity log
type ActivityStore interface {
	AppendActivity(ctx context.Context, e contracts.ActivityLogEntry) error
	RecentActivity(ctx context.Context, limit int) ([]contracts.ActivityLogEntry, error)
}

// TaskStore persists background analysis tasks
type TaskStore interface {
	CreateTask(ctx context.Context, t contracts.BackgroundTask) error
	TransitionTask(ctx context.Context, id string, fn func(*contracts.BackgroundTask)) (*contracts.BackgroundTask, error)
	GetTask(ctx context.Context, id string) (*contracts.BackgroundTask, error)
	ListTasks(ctx context.Context) ([]contracts.BackgroundTask, error)
	FailInterruptedTasks(ctx context.Context, now time.Time) (int, error)
}

// LearningStore persists the single LearningState document
type LearningStore interface {
	LearningState(ctx context.Context) (*contracts.LearningState, error)
	UpdateLearningState(ctx context.Context, fn func(*contracts.LearningState) error) (*contracts.LearningState, error)
}

// WeightHistoryStore persists weight snapshots
type WeightHistoryStore interface {
	AppendWeightSnapshot(ctx context.Context, s contracts.WeightSnapshot) error
	WeightHistory(ctx context.Context, limit int) ([]contracts.WeightSnapshot, error)
}

// Document names
const (
	docScanState     = "scan_state"
	docActivity      = "activity_log"
	docTasks         = "background_tasks"
	docLearning      = "learning_state"
	docWeightHistory = "weight_history"
)

// decisionRecord is a Decision as handed to a backend
type decisionRecord struct {
	ID        string
	Ticker    string
	Timestamp time.Time
	Body      []byte
}

// backend is the storage engine under Store.
// update must not write when fn returns an error, and must return that error unchanged.
type backend interface {
	name() string
	read(ctx context.Context, doc string) ([]byte, error)
	update(ctx context.Context, doc string, fn func(raw []byte) ([]byte, error)) error
	insertDecision(ctx context.Context, rec decisionRecord) error
	listDecisions(ctx context.Context, f DecisionFilter) ([][]byte, error)
	updateDecision(ctx context.Context, id string, fn func(raw []byte) ([]byte, error)) error
	close() error
}

// Store implements every state surface on top of one backend
// ⭐ SSOT: 상태 저장은 모두 여기를 거친다
type Store struct {
	b   backend
	now func() time.Time
}

var (
	_ DecisionStore      = (*Store)(nil)
	_ ScanStateStore     = (*Store)(nil)
	_ ActivityStore      = (*Store)(nil)
	_ TaskStore          = (*Store)(nil)
	_ LearningStore      = (*Store)(nil)
	_ WeightHistoryStore = (*Store)(nil)
)

func newStore(b backend) *Store {
	return &Store{b: b, now: func() time.Time { return time.Now().UTC() }}
}

// Open creates the store selected by cfg.StoreBackend
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.StoreBackend {
	case config.StoreFile:
		return NewFileStore(cfg.DataDir)

	case config.StoreSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(ctx, db)

	case config.StorePostgres:
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgresStore(ctx, db)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// Backend names the storage engine
func (s *Store) Backend() string {
	return s.b.name()
}

// Close releases the backend
func (s *Store) Close() error {
	return s.b.close()
}

// errNoChange aborts an update without writing
var errNoChange = errors.New("no change")

// readDoc decodes a document into v, leaving v untouched when it does not exist
func readDoc(ctx context.Context, b backend, doc string, v interface{}) error {
	raw, err := b.read(ctx, doc)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", contracts.ErrPersistence, doc, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", contracts.ErrPersistence, doc, err)
	}
	return nil
}

// updateDoc runs a serialized read-modify-write of one document. newFn builds
// the value used when the document does not exist yet. Errors from fn are
// returned as-is; storage errors wrap ErrPersistence.
func updateDoc[T any](ctx context.Context, b backend, doc string, newFn func() *T, fn func(*T) error) (*T, error) {
	var (
		out   *T
		fnErr error
	)

	err := b.update(ctx, doc, func(raw []byte) ([]byte, error) {
		v := newFn()
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, v); err != nil {
				return nil, fmt.Errorf("decode %s: %w", doc, err)
			}
		}
		if err := fn(v); err != nil {
			fnErr = err
			out = v
			return nil, err
		}
		out = v
		return json.Marshal(v)
	})

	switch {
	case fnErr != nil:
		return out, fnErr
	case err != nil:
		return nil, fmt.Errorf("%w: update %s: %v", contracts.ErrPersistence, doc, err)
	}
	return out, nil
}
