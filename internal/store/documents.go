package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/tradeloop/internal/contracts"
)

// ============================================================================
// Scan state
// ============================================================================

// ScanState returns the persisted scan state (idle when none exists)
func (s *Store) ScanState(ctx context.Context) (*contracts.ScanState, error) {
	st := contracts.NewScanState()
	if err := readDoc(ctx, s.b, docScanState, st); err != nil {
		return nil, err
	}
	if st.LastScan == nil {
		st.LastScan = make(map[string]time.Time)
	}
	return st, nil
}

// TryBeginScan raises the in-progress flag if it is down. ok is false, with
// the current state, when another scan already holds it.
func (s *Store) TryBeginScan(ctx context.Context, universe string, now time.Time) (bool, *contracts.ScanState, error) {
	st, err := updateDoc(ctx, s.b, docScanState, contracts.NewScanState, func(st *contracts.ScanState) error {
		if st.InProgress {
			return errNoChange
		}
		started := now
		st.InProgress = true
		st.CurrentUniverse = universe
		st.ScanStartedAt = &started
		return nil
	})
	if err == errNoChange {
		return false, st, nil
	}
	if err != nil {
		return false, nil, err
	}
	return true, st, nil
}

// FinishScan lowers the in-progress flag and books the scan's totals
func (s *Store) FinishScan(ctx context.Context, universe string, now time.Time, analyzed, saved int) (*contracts.ScanState, error) {
	return updateDoc(ctx, s.b, docScanState, contracts.NewScanState, func(st *contracts.ScanState) error {
		if st.LastScan == nil {
			st.LastScan = make(map[string]time.Time)
		}
		st.InProgress = false
		st.CurrentUniverse = ""
		st.ScanStartedAt = nil
		st.TotalScansCompleted++
		st.TotalStocksAnalyzed += analyzed
		st.TotalDecisionsSaved += saved
		st.LastScan[universe] = now
		return nil
	})
}

// UpdateScanState applies fn to the scan state. fn must not raise InProgress;
// use TryBeginScan for that.
func (s *Store) UpdateScanState(ctx context.Context, fn func(*contracts.ScanState) error) (*contracts.ScanState, error) {
	return updateDoc(ctx, s.b, docScanState, contracts.NewScanState, func(st *contracts.ScanState) error {
		if st.LastScan == nil {
			st.LastScan = make(map[string]time.Time)
		}
		was := st.InProgress
		if err := fn(st); err != nil {
			return err
		}
		if st.InProgress && !was {
			return fmt.Errorf("%w: in-progress flag can only be raised by TryBeginScan", contracts.ErrInvalid)
		}
		return nil
	})
}

// ============================================================================
// Activity log
// ============================================================================

func newActivityLog() *[]contracts.ActivityLogEntry {
	return &[]contracts.ActivityLogEntry{}
}

// AppendActivity appends one entry, evicting the oldest beyond MaxActivityLog
func (s *Store) AppendActivity(ctx context.Context, e contracts.ActivityLogEntry) error {
	_, err := updateDoc(ctx, s.b, docActivity, newActivityLog, func(log *[]contracts.ActivityLogEntry) error {
		entries := append(*log, e)
		if n := len(entries); n > contracts.MaxActivityLog {
			entries = entries[n-contracts.MaxActivityLog:]
		}
		*log = entries
		return nil
	})
	return err
}

// RecentActivity returns the last limit entries, oldest first (all when limit ≤ 0)
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]contracts.ActivityLogEntry, error) {
	entries := []contracts.ActivityLogEntry{}
	if err := readDoc(ctx, s.b, docActivity, &entries); err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// ============================================================================
// Background tasks
// ============================================================================

type taskSet map[string]*contracts.BackgroundTask

func newTaskSet() *taskSet {
	ts := make(taskSet)
	return &ts
}

// evictCompleted keeps at most MaxCompletedTasks terminal tasks, dropping the
// oldest by completion time
func (ts taskSet) evictCompleted() {
	var done []*contracts.BackgroundTask
	for _, t := range ts {
		if t.Status.IsTerminal() {
			done = append(done, t)
		}
	}
	if len(done) <= contracts.MaxCompletedTasks {
		return
	}
	sort.Slice(done, func(i, j int) bool {
		return completedAt(done[i]).Before(completedAt(done[j]))
	})
	for _, t := range done[:len(done)-contracts.MaxCompletedTasks] {
		delete(ts, t.ID)
	}
}

func completedAt(t *contracts.BackgroundTask) time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.SubmittedAt
}

// CreateTask stores a new queued task
func (s *Store) CreateTask(ctx context.Context, t contracts.BackgroundTask) error {
	_, err := updateDoc(ctx, s.b, docTasks, newTaskSet, func(ts *taskSet) error {
		if t.ID == "" || t.Status != contracts.TaskQueued {
			return fmt.Errorf("%w: new task must have an id and be queued", contracts.ErrInvalid)
		}
		if _, exists := (*ts)[t.ID]; exists {
			return fmt.Errorf("%w: task %s already exists", contracts.ErrInvalid, t.ID)
		}
		task := t
		(*ts)[t.ID] = &task
		return nil
	})
	return err
}

// TransitionTask applies fn to a copy of the task and stores it if the status
// change is a legal forward transition
func (s *Store) TransitionTask(ctx context.Context, id string, fn func(*contracts.BackgroundTask)) (*contracts.BackgroundTask, error) {
	var updated contracts.BackgroundTask

	_, err := updateDoc(ctx, s.b, docTasks, newTaskSet, func(ts *taskSet) error {
		cur, ok := (*ts)[id]
		if !ok {
			return fmt.Errorf("task %s: %w", id, contracts.ErrNotFound)
		}
		next := *cur
		fn(&next)
		if next.Status != cur.Status && !cur.Status.CanTransition(next.Status) {
			return fmt.Errorf("%w: task %s: %s -> %s", contracts.ErrInvalid, id, cur.Status, next.Status)
		}
		next.ID = cur.ID
		(*ts)[id] = &next
		ts.evictCompleted()
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetTask returns one task
func (s *Store) GetTask(ctx context.Context, id string) (*contracts.BackgroundTask, error) {
	ts := make(taskSet)
	if err := readDoc(ctx, s.b, docTasks, &ts); err != nil {
		return nil, err
	}
	t, ok := ts[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, contracts.ErrNotFound)
	}
	return t, nil
}

// ListTasks returns all tasks ordered by submission
func (s *Store) ListTasks(ctx context.Context) ([]contracts.BackgroundTask, error) {
	ts := make(taskSet)
	if err := readDoc(ctx, s.b, docTasks, &ts); err != nil {
		return nil, err
	}
	out := make([]contracts.BackgroundTask, 0, len(ts))
	for _, t := range ts {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

// FailInterruptedTasks marks tasks left queued or running by a previous
// process as errored. Returns how many were changed.
func (s *Store) FailInterruptedTasks(ctx context.Context, now time.Time) (int, error) {
	changed := 0
	_, err := updateDoc(ctx, s.b, docTasks, newTaskSet, func(ts *taskSet) error {
		for _, t := range *ts {
			if t.Status.IsTerminal() {
				continue
			}
			done := now
			t.Status = contracts.TaskError
			t.Error = "interrupted by restart"
			t.CompletedAt = &done
			changed++
		}
		if changed == 0 {
			return errNoChange
		}
		ts.evictCompleted()
		return nil
	})
	if err == errNoChange {
		return 0, nil
	}
	return changed, err
}

// ============================================================================
// Learning state
// ============================================================================

// LearningState returns the persisted learning state, or a fresh one
func (s *Store) LearningState(ctx context.Context) (*contracts.LearningState, error) {
	st := contracts.NewLearningState(s.now())
	if err := readDoc(ctx, s.b, docLearning, st); err != nil {
		return nil, err
	}
	st.EnsureDefaults()
	return st, nil
}

// UpdateLearningState runs fn inside one serialized read-modify-write. The
// caps are applied, Version is incremented and LastUpdated set on every save.
func (s *Store) UpdateLearningState(ctx context.Context, fn func(*contracts.LearningState) error) (*contracts.LearningState, error) {
	now := s.now()
	newFn := func() *contracts.LearningState { return contracts.NewLearningState(now) }

	return updateDoc(ctx, s.b, docLearning, newFn, func(st *contracts.LearningState) error {
		st.EnsureDefaults()
		if err := fn(st); err != nil {
			return err
		}
		st.Trim()
		st.Version++
		st.LastUpdated = now
		return nil
	})
}

// ============================================================================
// Weight history
// ============================================================================

func newWeightHistory() *[]contracts.WeightSnapshot {
	return &[]contracts.WeightSnapshot{}
}

// AppendWeightSnapshot appends one snapshot, keeping the last MaxWeightHistory
func (s *Store) AppendWeightSnapshot(ctx context.Context, snap contracts.WeightSnapshot) error {
	_, err := updateDoc(ctx, s.b, docWeightHistory, newWeightHistory, func(h *[]contracts.WeightSnapshot) error {
		entries := append(*h, snap)
		if n := len(entries); n > contracts.MaxWeightHistory {
			entries = entries[n-contracts.MaxWeightHistory:]
		}
		*h = entries
		return nil
	})
	return err
}

// WeightHistory returns the last limit snapshots, oldest first (all when limit ≤ 0)
func (s *Store) WeightHistory(ctx context.Context, limit int) ([]contracts.WeightSnapshot, error) {
	entries := []contracts.WeightSnapshot{}
	if err := readDoc(ctx, s.b, docWeightHistory, &entries); err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}
