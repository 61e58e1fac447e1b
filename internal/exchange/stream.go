package exchange

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"futuresbot-go/internal/metrics"
	"futuresbot-go/internal/signal"
)

const (
	defaultStreamURL = "wss://fstream.binance.com"
	allTickerStream  = "/ws/!ticker@arr"
)

// ErrNotReady is returned by StreamSource.Tickers before the first batch arrives.
var ErrNotReady = errors.New("ticker stream has not delivered data yet")

// StreamSource keeps the latest ticker per symbol from the all-market stream.
type StreamSource struct {
	url string
	log zerolog.Logger

	mu    sync.RWMutex
	cache map[string]signal.Ticker

	initialBackoff time.Duration
	maxBackoff     time.Duration
	readTimeout    time.Duration
	pingInterval   time.Duration
}

// NewStreamSource targets wsBase (default Binance futures).
func NewStreamSource(wsBase string, log zerolog.Logger) *StreamSource {
	if wsBase == "" {
		wsBase = defaultStreamURL
	}
	url := strings.TrimSuffix(wsBase, "/")
	if !strings.Contains(url, "/ws/") && !strings.Contains(url, "/stream") {
		url += allTickerStream
	}
	return &StreamSource{
		url:            url,
		log:            log,
		cache:          make(map[string]signal.Ticker),
		initialBackoff: time.Second,
		maxBackoff:     30 * time.Second,
		readTimeout:    30 * time.Second,
		pingInterval:   15 * time.Second,
	}
}

func (s *StreamSource) Name() string { return ProviderStream }

// URL returns the resolved stream endpoint.
func (s *StreamSource) URL() string { return s.url }

// Tickers returns the cached rows sorted by symbol.
func (s *StreamSource) Tickers(ctx context.Context) ([]signal.Ticker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.cache) == 0 {
		return nil, ErrNotReady
	}
	out := make([]signal.Ticker, 0, len(s.cache))
	for _, row := range s.cache {
		out = append(out, row)
	}
	sortBySymbol(out)
	return out, nil
}

// Run consumes the stream until ctx is cancelled, reconnecting with backoff.
func (s *StreamSource) Run(ctx context.Context) error {
	backoff := s.initialBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn().Err(err).Dur("backoff", backoff).Msg("ticker stream disconnected, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(math.Min(float64(s.maxBackoff), float64(backoff)*1.8))
	}
}

func (s *StreamSource) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.log.Info().Str("provider", ProviderStream).Str("url", s.url).Msg("connected ticker stream")

	conn.SetReadLimit(8 << 20)
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.log.Warn().Err(err).Msg("ticker stream ping failed")
					return
				}
			case <-pingCtx.Done():
				// unblock ReadMessage on shutdown
				conn.SetReadDeadline(time.Now())
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		rows, err := decodeRows(message)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to decode ticker stream message")
			continue
		}
		s.store(rows)
	}
}

func (s *StreamSource) store(rows []signal.Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		if row.Symbol == "" {
			continue
		}
		s.cache[row.Symbol] = row
	}
	metrics.TickersTotal.WithLabelValues(ProviderStream).Add(float64(len(rows)))
}
