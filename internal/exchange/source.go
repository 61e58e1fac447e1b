// Package exchange hosts the market data sources that deliver 24h ticker rows.
package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"futuresbot-go/internal/config"
	"futuresbot-go/internal/signal"
)

const (
	// ProviderREST polls the futures 24h ticker endpoint.
	ProviderREST = "rest"
	// ProviderStream keeps a live cache from the all-market ticker websocket.
	ProviderStream = "stream"
	// ProviderFile reads a JSON array of ticker rows from disk.
	ProviderFile = "file"
	// ProviderStatic serves a fixed in-memory batch (dry runs and tests).
	ProviderStatic = "static"
)

// Source delivers the latest batch of raw ticker rows.
type Source interface {
	Name() string
	Tickers(ctx context.Context) ([]signal.Ticker, error)
}

// Filter keeps rows whose symbol is in the allowlist (when non-empty) and
// ends with quoteAsset (when set). Order is preserved.
func Filter(rows []signal.Ticker, symbols []string, quoteAsset string) []signal.Ticker {
	allow := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			allow[s] = struct{}{}
		}
	}
	quoteAsset = strings.ToUpper(strings.TrimSpace(quoteAsset))
	out := make([]signal.Ticker, 0, len(rows))
	for _, r := range rows {
		sym := strings.ToUpper(r.Symbol)
		if len(allow) > 0 {
			if _, ok := allow[sym]; !ok {
				continue
			}
		}
		if quoteAsset != "" && !strings.HasSuffix(sym, quoteAsset) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// filtered wraps a source with Filter.
type filtered struct {
	Source
	symbols    []string
	quoteAsset string
}

func (f *filtered) Tickers(ctx context.Context) ([]signal.Ticker, error) {
	rows, err := f.Source.Tickers(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(rows, f.symbols, f.quoteAsset), nil
}

// Runner is implemented by sources that need a background loop.
type Runner interface {
	Run(ctx context.Context) error
}

// NewSource builds the source named by cfg.Provider, wrapped in the symbol/quote filter.
// Stream sources must be started with Run before Tickers returns data.
func NewSource(cfg config.Exchange, log zerolog.Logger) (Source, error) {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	var src Source
	switch strings.ToLower(cfg.Provider) {
	case ProviderREST, "":
		src = NewRESTSource(cfg.BaseURL, timeout)
	case ProviderStream:
		src = NewStreamSource(cfg.WsURL, log)
	case ProviderFile:
		src = NewFileSource(cfg.DataFile)
	case ProviderStatic:
		src = NewStaticSource(placeholderRows(cfg.Symbols))
	default:
		return nil, fmt.Errorf("unknown exchange provider %q", cfg.Provider)
	}
	if len(cfg.Symbols) == 0 && cfg.QuoteAsset == "" {
		return src, nil
	}
	return &filtered{Source: src, symbols: cfg.Symbols, quoteAsset: cfg.QuoteAsset}, nil
}

// Unwrap returns the source underneath any filter, e.g. to start a StreamSource.
func Unwrap(src Source) Source {
	if f, ok := src.(*filtered); ok {
		return f.Source
	}
	return src
}

// placeholderRows yields flat rows for the configured symbols so a static dry run
// exercises the full cycle without ever signalling.
func placeholderRows(symbols []string) []signal.Ticker {
	rows := make([]signal.Ticker, 0, len(symbols))
	for _, s := range symbols {
		rows = append(rows, signal.Ticker{Symbol: strings.ToUpper(s), PriceChangePercent: "0", QuoteVolume: "0", LastPrice: "100"})
	}
	return rows
}

// decodeRows reads a JSON array of ticker objects. Numeric fields may be
// strings or numbers; keys are looked up under both REST and stream names.
func decodeRows(body []byte) ([]signal.Ticker, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid ticker json")
	}
	root := gjson.ParseBytes(body)
	if data := root.Get("data"); data.Exists() {
		root = data
	}
	if !root.IsArray() {
		return nil, fmt.Errorf("ticker payload is not an array")
	}
	items := root.Array()
	rows := make([]signal.Ticker, 0, len(items))
	for _, item := range items {
		rows = append(rows, signal.Ticker{
			Symbol:             field(item, "symbol", "s"),
			PriceChangePercent: field(item, "priceChangePercent", "P"),
			QuoteVolume:        field(item, "quoteVolume", "q"),
			LastPrice:          field(item, "lastPrice", "c"),
		})
	}
	return rows, nil
}

func field(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() {
			return v.String()
		}
	}
	return ""
}

func sortBySymbol(rows []signal.Ticker) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
}
