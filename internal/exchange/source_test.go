package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"futuresbot-go/internal/config"
	"futuresbot-go/internal/signal"
)

const restPayload = `[
 {"symbol":"BTCUSDT","priceChangePercent":"4.120","quoteVolume":"25000000.5","lastPrice":"50000.10"},
 {"symbol":"ETHBUSD","priceChangePercent":-5.5,"quoteVolume":15000000,"lastPrice":3000},
 {"symbol":"XRPUSDT","priceChangePercent":"1","quoteVolume":"5000000"}
]`

func TestDecodeRowsAcceptsStringsAndNumbers(t *testing.T) {
	rows, err := decodeRows([]byte(restPayload))
	if err != nil {
		t.Fatalf("decodeRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].PriceChangePercent != "4.120" || rows[0].LastPrice != "50000.10" {
		t.Fatalf("string fields altered: %+v", rows[0])
	}
	if rows[1].PriceChangePercent != "-5.5" || rows[1].QuoteVolume != "15000000" {
		t.Fatalf("numeric fields not kept verbatim: %+v", rows[1])
	}
	if rows[2].LastPrice != "" {
		t.Fatalf("missing field should decode empty, got %q", rows[2].LastPrice)
	}
	if _, err := decodeRows([]byte(`{"symbol":"X"}`)); err == nil {
		t.Fatalf("expected error for non-array payload")
	}
	if _, err := decodeRows([]byte(`[{`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}

func TestDecodeRowsStreamNames(t *testing.T) {
	rows, err := decodeRows([]byte(`{"stream":"!ticker@arr","data":[{"e":"24hrTicker","s":"SOLUSDT","P":"7.01","q":"91000000","c":"150.2"}]}`))
	if err != nil {
		t.Fatalf("decodeRows: %v", err)
	}
	want := signal.Ticker{Symbol: "SOLUSDT", PriceChangePercent: "7.01", QuoteVolume: "91000000", LastPrice: "150.2"}
	if len(rows) != 1 || rows[0] != want {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestFilter(t *testing.T) {
	rows := []signal.Ticker{{Symbol: "BTCUSDT"}, {Symbol: "ETHBUSD"}, {Symbol: "ethusdt"}, {Symbol: "XRPUSDT"}}
	got := Filter(rows, nil, "usdt")
	if len(got) != 3 || got[1].Symbol != "ethusdt" {
		t.Fatalf("quote filter: %+v", got)
	}
	got = Filter(rows, []string{" ethusdt ", "ETHBUSD"}, "USDT")
	if len(got) != 1 || got[0].Symbol != "ethusdt" {
		t.Fatalf("allowlist filter: %+v", got)
	}
	if got := Filter(rows, nil, ""); len(got) != len(rows) {
		t.Fatalf("empty filter should keep everything")
	}
}

func TestRESTSource(t *testing.T) {
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(restPayload))
	}))
	defer srv.Close()

	src := NewRESTSource(srv.URL+"/", time.Second)
	rows, err := src.Tickers(context.Background())
	if err != nil {
		t.Fatalf("Tickers: %v", err)
	}
	if got := <-paths; got != "/fapi/v1/ticker/24hr" {
		t.Fatalf("unexpected path %s", got)
	}
	if len(rows) != 3 || rows[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestRESTSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1003,"msg":"Too many requests"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewRESTSource(srv.URL, time.Second).Tickers(context.Background())
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRESTSource(srv.URL, time.Second).Tickers(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "futures_data.json")
	if err := os.WriteFile(path, []byte(restPayload), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rows, err := NewFileSource(path).Tickers(context.Background())
	if err != nil {
		t.Fatalf("Tickers: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if _, err := NewFileSource(path + ".missing").Tickers(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource([]signal.Ticker{{Symbol: "A"}})
	rows, _ := src.Tickers(context.Background())
	rows[0].Symbol = "mutated"
	again, _ := src.Tickers(context.Background())
	if again[0].Symbol != "A" {
		t.Fatalf("static source leaked its backing slice")
	}
	boom := errors.New("boom")
	src.Fail(boom)
	if _, err := src.Tickers(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	src.Set(nil)
	if rows, err := src.Tickers(context.Background()); err != nil || len(rows) != 0 {
		t.Fatalf("Set should clear error, got %v %v", rows, err)
	}
}

func TestNewSource(t *testing.T) {
	cfg := config.Defaults().Exchange
	cases := map[string]string{
		ProviderREST:   ProviderREST,
		ProviderStream: ProviderStream,
		ProviderFile:   ProviderFile,
		"STATIC":       ProviderStatic,
	}
	for provider, want := range cases {
		cfg.Provider = provider
		src, err := NewSource(cfg, zerolog.Nop())
		if err != nil {
			t.Fatalf("%s: %v", provider, err)
		}
		if src.Name() != want {
			t.Fatalf("%s: got source %s", provider, src.Name())
		}
	}
	cfg.Provider = "carrier-pigeon"
	if _, err := NewSource(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestNewSourceStaticFiltersSymbols(t *testing.T) {
	cfg := config.Exchange{Provider: ProviderStatic, Symbols: []string{"btcusdt", "ETHBTC"}, QuoteAsset: "USDT"}
	src, err := NewSource(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	rows, err := src.Tickers(context.Background())
	if err != nil {
		t.Fatalf("Tickers: %v", err)
	}
	if len(rows) != 1 || rows[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if _, ok := Unwrap(src).(*StaticSource); !ok {
		t.Fatalf("Unwrap should expose the static source")
	}
}

func TestStreamSourceCachesLatestRows(t *testing.T) {
	upgrader := websocket.Upgrader{}
	paths := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"s":"ETHUSDT","P":"1","q":"10","c":"3000"},{"s":"BTCUSDT","P":"2","q":"20","c":"50000"}]`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"s":"BTCUSDT","P":"4.5","q":"30","c":"51000"}]`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	src := NewStreamSource("ws"+strings.TrimPrefix(srv.URL, "http"), zerolog.Nop())
	if _, err := src.Tickers(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady before first message, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	var rows []signal.Ticker
	for time.Now().Before(deadline) {
		rows, _ = src.Tickers(context.Background())
		if len(rows) == 2 && rows[0].PriceChangePercent == "4.5" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	if len(rows) != 2 || rows[0].Symbol != "BTCUSDT" || rows[0].PriceChangePercent != "4.5" || rows[1].Symbol != "ETHUSDT" {
		t.Fatalf("unexpected cached rows %+v", rows)
	}
	if got := <-paths; got != "/ws/!ticker@arr" {
		t.Fatalf("unexpected stream path %s", got)
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}
