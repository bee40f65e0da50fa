package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wonny/tradeloop/internal/contracts"
)

const decisionsFile = "decisions.json"

// fileBackend keeps one JSON file per document under dir. Writes go to a
// temp file and are renamed into place.
type fileBackend struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore opens a JSON-file store rooted at dir
func NewFileStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("empty data directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return newStore(&fileBackend{dir: dir}), nil
}

func (f *fileBackend) name() string { return "file" }

func (f *fileBackend) close() error { return nil }

func (f *fileBackend) path(doc string) string {
	return filepath.Join(f.dir, doc+".json")
}

func (f *fileBackend) load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// write replaces path atomically
func (f *fileBackend) write(path string, data []byte) error {
	tmp, err := os.CreateTemp(f.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (f *fileBackend) read(ctx context.Context, doc string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load(f.path(doc))
}

func (f *fileBackend) update(ctx context.Context, doc string, fn func([]byte) ([]byte, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(doc)
	raw, err := f.load(path)
	if err != nil {
		return err
	}
	next, err := fn(raw)
	if err != nil {
		return err
	}
	return f.write(path, next)
}

// decisions.json holds a JSON array of decision objects in save order

func (f *fileBackend) loadDecisions() ([]json.RawMessage, error) {
	raw, err := f.load(filepath.Join(f.dir, decisionsFile))
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", decisionsFile, err)
	}
	return list, nil
}

func (f *fileBackend) saveDecisions(list []json.RawMessage) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return f.write(filepath.Join(f.dir, decisionsFile), data)
}

type decisionHeader struct {
	ID        string    `json:"id"`
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
}

func (f *fileBackend) insertDecision(ctx context.Context, rec decisionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	list, err := f.loadDecisions()
	if err != nil {
		return err
	}
	for _, raw := range list {
		var h decisionHeader
		if json.Unmarshal(raw, &h) == nil && h.ID == rec.ID {
			return fmt.Errorf("%w: decision %s already exists", contracts.ErrInvalid, rec.ID)
		}
	}
	return f.saveDecisions(append(list, json.RawMessage(rec.Body)))
}

func (f *fileBackend) listDecisions(ctx context.Context, filter DecisionFilter) ([][]byte, error) {
	f.mu.Lock()
	list, err := f.loadDecisions()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out [][]byte
	for _, raw := range list {
		var h decisionHeader
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("decode decision header: %w", err)
		}
		if filter.Ticker != "" && h.Ticker != filter.Ticker {
			continue
		}
		if !filter.Since.IsZero() && h.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, raw)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func (f *fileBackend) updateDecision(ctx context.Context, id string, fn func([]byte) ([]byte, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	list, err := f.loadDecisions()
	if err != nil {
		return err
	}
	for i, raw := range list {
		var h decisionHeader
		if json.Unmarshal(raw, &h) != nil || h.ID != id {
			continue
		}
		next, err := fn(raw)
		if err != nil {
			return err
		}
		list[i] = next
		return f.saveDecisions(list)
	}
	return fmt.Errorf("decision %s: %w", id, contracts.ErrNotFound)
}
