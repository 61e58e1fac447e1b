package exchange

import (
	"context"
	"fmt"
	"os"
	"sync"

	"futuresbot-go/internal/metrics"
	"futuresbot-go/internal/signal"
)

// FileSource reads a JSON array of ticker rows, re-reading the file on every call.
type FileSource struct {
	path string
}

// NewFileSource binds the source to path.
func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

func (s *FileSource) Name() string { return ProviderFile }

func (s *FileSource) Tickers(ctx context.Context) ([]signal.Ticker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read ticker file: %w", err)
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	metrics.TickersTotal.WithLabelValues(ProviderFile).Add(float64(len(rows)))
	return rows, nil
}

// StaticSource serves a fixed batch that can be swapped between calls.
type StaticSource struct {
	mu   sync.RWMutex
	rows []signal.Ticker
	err  error
}

// NewStaticSource copies rows into a new source.
func NewStaticSource(rows []signal.Ticker) *StaticSource {
	s := &StaticSource{}
	s.Set(rows)
	return s
}

func (s *StaticSource) Name() string { return ProviderStatic }

// Set replaces the served rows and clears any injected error.
func (s *StaticSource) Set(rows []signal.Ticker) {
	cp := make([]signal.Ticker, len(rows))
	copy(cp, rows)
	s.mu.Lock()
	s.rows = cp
	s.err = nil
	s.mu.Unlock()
}

// Fail makes subsequent calls return err.
func (s *StaticSource) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *StaticSource) Tickers(ctx context.Context) ([]signal.Ticker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]signal.Ticker, len(s.rows))
	copy(out, s.rows)
	metrics.TickersTotal.WithLabelValues(ProviderStatic).Add(float64(len(out)))
	return out, nil
}
