package marketdata

import (
	"context"
	"fmt"
	"sync"

	"github.com/wonny/tradeloop/internal/contracts"
)

// Memory is a MarketData backed by in-process series. Used for offline runs
// and tests.
type Memory struct {
	mu         sync.RWMutex
	bars       map[string][]contracts.PriceBar
	info       map[string]*contracts.InstrumentInfo
	indicators contracts.GlobalIndicators
	failures   map[string]error
	calls      map[string]int
}

// NewMemory creates an empty in-memory source
func NewMemory() *Memory {
	return &Memory{
		bars:       make(map[string][]contracts.PriceBar),
		info:       make(map[string]*contracts.InstrumentInfo),
		indicators: contracts.GlobalIndicators{},
		failures:   make(map[string]error),
		calls:      make(map[string]int),
	}
}

// SetBars sets the full daily history for symbol
func (m *Memory) SetBars(symbol string, bars []contracts.PriceBar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = bars
}

// SetInfo sets static metrics for symbol
func (m *Memory) SetInfo(symbol string, info *contracts.InstrumentInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info[symbol] = info
}

// SetIndicators replaces the global indicators
func (m *Memory) SetIndicators(ind contracts.GlobalIndicators) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indicators = ind
}

// Fail makes every PriceHistory call for symbol return err
func (m *Memory) Fail(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[symbol] = err
}

// Calls returns how many PriceHistory calls symbol received
func (m *Memory) Calls(symbol string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[symbol]
}

// PriceHistory returns up to the last `days` bars for symbol
func (m *Memory) PriceHistory(ctx context.Context, symbol string, days int) ([]contracts.PriceBar, error) {
	m.mu.Lock()
	m.calls[symbol]++
	bars := m.bars[symbol]
	failure := m.failures[symbol]
	m.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, contracts.ErrDataUnavailable)
	}
	if days > 0 && len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	out := make([]contracts.PriceBar, len(bars))
	copy(out, bars)
	return out, nil
}

// Info returns the static metrics for symbol
func (m *Memory) Info(ctx context.Context, symbol string) (*contracts.InstrumentInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.info[symbol]
	if !ok {
		return nil, fmt.Errorf("info %s: %w", symbol, contracts.ErrNotFound)
	}
	cp := *info
	return &cp, nil
}

// GlobalIndicators returns a copy of the indicator set
func (m *Memory) GlobalIndicators(ctx context.Context) (contracts.GlobalIndicators, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(contracts.GlobalIndicators, len(m.indicators))
	for k, v := range m.indicators {
		out[k] = v
	}
	return out, nil
}
