package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wonny/tradeloop/internal/contracts"
)

// SaveDecision validates and appends a Decision
func (s *Store) SaveDecision(ctx context.Context, d *contracts.Decision) error {
	if d == nil {
		return fmt.Errorf("%w: nil decision", contracts.ErrInvalid)
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ID == "" {
		return fmt.Errorf("%w: decision %s has no id", contracts.ErrInvalid, d.Ticker)
	}

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("%w: encode decision: %v", contracts.ErrPersistence, err)
	}

	rec := decisionRecord{ID: d.ID, Ticker: d.Ticker, Timestamp: d.Timestamp.UTC(), Body: body}
	if err := s.b.insertDecision(ctx, rec); err != nil {
		return fmt.Errorf("%w: save decision %s: %w", contracts.ErrPersistence, d.ID, err)
	}
	return nil
}

// ListDecisions returns matching decisions in the order they were saved
func (s *Store) ListDecisions(ctx context.Context, f DecisionFilter) ([]contracts.Decision, error) {
	bodies, err := s.b.listDecisions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: list decisions: %v", contracts.ErrPersistence, err)
	}

	out := make([]contracts.Decision, 0, len(bodies))
	for _, body := range bodies {
		var d contracts.Decision
		if err := json.Unmarshal(body, &d); err != nil {
			return nil, fmt.Errorf("%w: decode decision: %v", contracts.ErrPersistence, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// AttachEvaluation stores ev on the decision. Core fields are never rewritten.
func (s *Store) AttachEvaluation(ctx context.Context, id string, ev contracts.Evaluation) error {
	err := s.b.updateDecision(ctx, id, func(raw []byte) ([]byte, error) {
		var d contracts.Decision
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode decision %s: %w", id, err)
		}
		return json.Marshal(d.WithEvaluation(ev))
	})
	if errors.Is(err, contracts.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: attach evaluation %s: %v", contracts.ErrPersistence, id, err)
	}
	return nil
}
