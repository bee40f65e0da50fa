// Package universe holds the named instrument lists the agent scans
package universe

import (
	"fmt"

	"github.com/wonny/tradeloop/internal/contracts"
)

// Universe is one named list of instruments, scanned in list order
type Universe struct {
	Key     string   `yaml:"key" json:"key"`
	Name    string   `yaml:"name" json:"name"`
	Tickers []string `yaml:"tickers" json:"tickers"`
}

// Catalogue is the ordered set of universes
// ⭐ SSOT: 유니버스 순서 = 전체 스캔/로테이션 순서
type Catalogue struct {
	Universes []Universe `yaml:"universes" json:"universes"`
}

// Keys returns the universe keys in catalogue order
func (c *Catalogue) Keys() []string {
	keys := make([]string, len(c.Universes))
	for i, u := range c.Universes {
		keys[i] = u.Key
	}
	return keys
}

// Len returns the number of universes
func (c *Catalogue) Len() int {
	return len(c.Universes)
}

// Get returns the universe with key
func (c *Catalogue) Get(key string) (Universe, error) {
	for _, u := range c.Universes {
		if u.Key == key {
			return u, nil
		}
	}
	return Universe{}, fmt.Errorf("universe %q: %w", key, contracts.ErrNotFound)
}

// Tickers returns a copy of the universe's instrument list, truncated to
// limit when limit > 0
func (c *Catalogue) Tickers(key string, limit int) ([]string, error) {
	u, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	tickers := u.Tickers
	if limit > 0 && len(tickers) > limit {
		tickers = tickers[:limit]
	}
	return append([]string(nil), tickers...), nil
}

// At returns the universe at idx modulo the catalogue size (rotation order)
func (c *Catalogue) At(idx int) Universe {
	n := len(c.Universes)
	i := idx % n
	if i < 0 {
		i += n
	}
	return c.Universes[i]
}
