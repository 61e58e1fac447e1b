package execution

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type failingSink struct{}

func (failingSink) Execute(context.Context, Order) (Fill, error) { return Fill{}, errors.New("venue down") }
func (failingSink) Name() string                                 { return "failing" }

func TestSubmitLogsOrder(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	exec := NewExecutor(NewPaperSink(0, 0), logger)
	fill, err := exec.Submit(context.Background(), Order{Symbol: "BTCUSDT", Side: Buy, Qty: 1, Price: 50000})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if fill.Price != 50000 || fill.Qty != 1 {
		t.Fatalf("unexpected fill %+v", fill)
	}
	out := buf.String()
	if !strings.Contains(out, "BTCUSDT") || !strings.Contains(out, "submit order") {
		t.Fatalf("log does not contain order: %s", out)
	}
	if exec.SinkName() != "paper" {
		t.Fatalf("unexpected sink name %s", exec.SinkName())
	}
}

func TestSubmitRejectsInvalidOrders(t *testing.T) {
	exec := NewExecutor(NewPaperSink(0, 0), zerolog.Nop())
	for _, order := range []Order{
		{Side: Buy, Qty: 1, Price: 1},
		{Symbol: "BTCUSDT", Side: "HOLD", Qty: 1, Price: 1},
		{Symbol: "BTCUSDT", Side: Sell, Qty: 0, Price: 1},
		{Symbol: "BTCUSDT", Side: Sell, Qty: 1, Price: -1},
	} {
		if _, err := exec.Submit(context.Background(), order); !errors.Is(err, ErrInvalidOrder) {
			t.Fatalf("expected ErrInvalidOrder for %+v, got %v", order, err)
		}
	}
}

func TestSubmitWrapsSinkErrors(t *testing.T) {
	var buf bytes.Buffer
	exec := NewExecutor(failingSink{}, zerolog.New(&buf))
	_, err := exec.Submit(context.Background(), Order{Symbol: "ETHUSDT", Side: Sell, Qty: 1, Price: 10})
	if err == nil || !strings.Contains(err.Error(), "venue down") {
		t.Fatalf("expected wrapped sink error, got %v", err)
	}
	if !strings.Contains(buf.String(), "order failed") {
		t.Fatalf("expected failure log, got %s", buf.String())
	}
}

func TestPaperSinkAppliesSlippageAndFees(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sink := NewPaperSink(10, 5, WithPaperClock(func() time.Time { return fixed }))

	buy, err := sink.Execute(context.Background(), Order{Symbol: "BTCUSDT", Side: Buy, Qty: 2, Price: 100})
	if err != nil {
		t.Fatalf("buy error: %v", err)
	}
	if diff := buy.Price - 100.05; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected buy slipped to 100.05, got %.6f", buy.Price)
	}
	if diff := buy.Fee - 2*100.05*0.001; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unexpected fee %.6f", buy.Fee)
	}
	if !buy.Ts.Equal(fixed) || !strings.HasPrefix(buy.OrderID, "PAPER-") {
		t.Fatalf("unexpected fill metadata %+v", buy)
	}

	sell, err := sink.Execute(context.Background(), Order{Symbol: "BTCUSDT", Side: Sell, Qty: 1, Price: 100})
	if err != nil {
		t.Fatalf("sell error: %v", err)
	}
	if sell.Price >= 100 {
		t.Fatalf("expected sell slipped below reference, got %.6f", sell.Price)
	}
	if sell.OrderID == buy.OrderID {
		t.Fatalf("expected unique order ids")
	}
	if sink.Fills() != 2 {
		t.Fatalf("expected 2 fills, got %d", sink.Fills())
	}
}

func TestPaperSinkRequiresReferencePrice(t *testing.T) {
	sink := NewPaperSink(0, 0)
	if _, err := sink.Execute(context.Background(), Order{Symbol: "BTCUSDT", Side: Buy, Qty: 1}); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sink.Execute(ctx, Order{Symbol: "BTCUSDT", Side: Buy, Qty: 1, Price: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestSideOpposite(t *testing.T) {
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Fatalf("unexpected opposite mapping")
	}
}

const exchangeInfoBody = `{"symbols":[
 {"symbol":"BTCUSDT","filters":[{"filterType":"PRICE_FILTER","tickSize":"0.10"},{"filterType":"LOT_SIZE","minQty":"0.001","maxQty":"1000","stepSize":"0.001"}]},
 {"symbol":"ETHUSDT","filters":[{"filterType":"LOT_SIZE","minQty":"0.01","maxQty":"10000","stepSize":"0.01"}]}
]}`

// binanceServer answers exchangeInfo from a fixed body and hands every other request to order.
func binanceServer(order http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fapi/v1/exchangeInfo" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(exchangeInfoBody))
			return
		}
		order(w, r)
	}))
}

func TestBinanceSinkPlacesMarketOrder(t *testing.T) {
	requests := make(chan string, 1)
	server := binanceServer(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		requests <- r.URL.Path + "?" + r.Form.Encode()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderId":987654,"symbol":"BTCUSDT","status":"FILLED","side":"SELL","type":"MARKET","origQty":"0.002","executedQty":"0.002","avgPrice":"50123.5","updateTime":1714564800000}`))
	})
	defer server.Close()

	sink := NewBinanceSink("key", "secret", server.URL, false, WithBinanceFeeBps(4))
	fill, err := sink.Execute(context.Background(), Order{Symbol: "BTCUSDT", Side: Sell, Qty: 0.002, Price: 50000})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	got := <-requests
	if !strings.HasPrefix(got, "/fapi/v1/order?") {
		t.Fatalf("unexpected request %s", got)
	}
	for _, want := range []string{"side=SELL", "type=MARKET", "quantity=0.002&", "symbol=BTCUSDT"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in request %s", want, got)
		}
	}
	if fill.OrderID != "987654" || fill.Price != 50123.5 || fill.Qty != 0.002 {
		t.Fatalf("unexpected fill %+v", fill)
	}
	if want := 0.002 * 50123.5 * 4 / 10_000; math.Abs(fill.Fee-want) > 1e-12 {
		t.Fatalf("expected fee %.8f, got %.8f", want, fill.Fee)
	}
	if fill.Ts.UnixMilli() != 1714564800000 {
		t.Fatalf("unexpected fill time %v", fill.Ts)
	}
}

func TestBinanceSinkFloorsQuantityToStepSize(t *testing.T) {
	quantities := make(chan string, 2)
	server := binanceServer(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		quantities <- r.Form.Get("quantity")
		_, _ = w.Write([]byte(`{"orderId":2,"symbol":"BTCUSDT","status":"NEW","executedQty":"0","avgPrice":"0.00"}`))
	})
	defer server.Close()

	sink := NewBinanceSink("key", "secret", server.URL, false)
	fill, err := sink.Execute(context.Background(), Order{Symbol: "BTCUSDT", Side: Buy, Qty: 100 / 50123.7, Price: 50123.7})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if q := <-quantities; q != "0.001" {
		t.Fatalf("expected quantity floored to 0.001, got %s", q)
	}
	if fill.Qty != 0.001 || fill.Fee != 0 {
		t.Fatalf("expected rounded fallback qty and no fee, got %+v", fill)
	}

	if _, err := sink.Execute(context.Background(), Order{Symbol: "ETHUSDT", Side: Buy, Qty: 2.349, Price: 3000}); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if q := <-quantities; q != "2.34" {
		t.Fatalf("expected quantity 2.34, got %s", q)
	}
}

func TestBinanceSinkRejectsQuantityBelowMin(t *testing.T) {
	server := binanceServer(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected order request %s", r.URL.Path)
	})
	defer server.Close()

	sink := NewBinanceSink("key", "secret", server.URL, false)
	_, err := sink.Execute(context.Background(), Order{Symbol: "BTCUSDT", Side: Buy, Qty: 0.0004, Price: 50000})
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
	_, err = sink.Execute(context.Background(), Order{Symbol: "DOGEUSDT", Side: Buy, Qty: 10, Price: 0.1})
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder for unlisted symbol, got %v", err)
	}
}

func TestBinanceSinkAckFallsBackToRequest(t *testing.T) {
	server := binanceServer(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"orderId":1,"symbol":"ETHUSDT","status":"NEW","executedQty":"0","avgPrice":"0.00"}`))
	})
	defer server.Close()

	sink := NewBinanceSink("key", "secret", server.URL, false)
	fill, err := sink.Execute(context.Background(), Order{Symbol: "ETHUSDT", Side: Buy, Qty: 0.5, Price: 3000})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if fill.Qty != 0.5 || fill.Price != 3000 {
		t.Fatalf("expected request fallbacks, got %+v", fill)
	}
}

func TestBinanceSinkSurfacesAPIError(t *testing.T) {
	server := binanceServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	})
	defer server.Close()

	sink := NewBinanceSink("key", "secret", server.URL, false)
	_, err := sink.Execute(context.Background(), Order{Symbol: "ETHUSDT", Side: Buy, Qty: 0.5, Price: 3000})
	if err == nil || !strings.Contains(err.Error(), "Margin is insufficient") {
		t.Fatalf("expected api error, got %v", err)
	}
}
