package execution

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const binanceFuturesTestnetURL = "https://testnet.binancefuture.com"

// lotSize is the LOT_SIZE filter of one symbol.
type lotSize struct {
	step      decimal.Decimal
	min       decimal.Decimal
	precision int32
}

// BinanceSink places MARKET orders on Binance USDⓈ-M futures.
type BinanceSink struct {
	client *futures.Client
	now    func() time.Time
	feeBps float64

	mu   sync.Mutex
	lots map[string]lotSize
}

// BinanceOption configures a BinanceSink.
type BinanceOption func(*BinanceSink)

// WithBinanceFeeBps charges feeBps on every fill notional. The order endpoint does not report commissions.
func WithBinanceFeeBps(feeBps float64) BinanceOption {
	return func(b *BinanceSink) { b.feeBps = max(feeBps, 0) }
}

// NewBinanceSink builds a live sink. baseURL overrides the venue endpoint when set.
func NewBinanceSink(apiKey, apiSecret, baseURL string, testnet bool, opts ...BinanceOption) *BinanceSink {
	client := futures.NewClient(apiKey, apiSecret)
	switch {
	case baseURL != "":
		client.BaseURL = strings.TrimSuffix(baseURL, "/")
	case testnet:
		client.BaseURL = binanceFuturesTestnetURL
	}
	b := &BinanceSink{client: client, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Sink.
func (b *BinanceSink) Name() string { return "binance-futures" }

// Execute implements Sink.
func (b *BinanceSink) Execute(ctx context.Context, order Order) (Fill, error) {
	if err := order.Validate(); err != nil {
		return Fill{}, err
	}
	lot, err := b.lotFilter(ctx, order.Symbol)
	if err != nil {
		return Fill{}, err
	}
	qty := decimal.NewFromFloat(order.Qty).Div(lot.step).Floor().Mul(lot.step)
	if qty.LessThan(lot.min) || !qty.IsPositive() {
		return Fill{}, fmt.Errorf("%w: %s qty %.8f below min %s", ErrInvalidOrder, order.Symbol, order.Qty, lot.min)
	}
	rounded := qty.InexactFloat64()

	side := futures.SideTypeBuy
	if order.Side == Sell {
		side = futures.SideTypeSell
	}
	clientID := "fb-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	res, err := b.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Type(futures.OrderTypeMarket).
		Quantity(qty.StringFixed(lot.precision)).
		NewClientOrderID(clientID).
		Do(ctx)
	if err != nil {
		return Fill{}, fmt.Errorf("create order: %w", err)
	}

	// ACK responses report zero fills; fall back to the request.
	filled := parsePositive(res.ExecutedQuantity, rounded)
	px := parsePositive(res.AvgPrice, order.Price)
	ts := b.now()
	if res.UpdateTime > 0 {
		ts = time.UnixMilli(res.UpdateTime)
	}
	return Fill{
		OrderID: strconv.FormatInt(res.OrderID, 10),
		Symbol:  order.Symbol,
		Side:    order.Side,
		Qty:     filled,
		Price:   px,
		Fee:     filled * px * b.feeBps / 10_000,
		Ts:      ts,
	}, nil
}

// lotFilter returns the cached LOT_SIZE filter for symbol, loading exchangeInfo on first use.
func (b *BinanceSink) lotFilter(ctx context.Context, symbol string) (lotSize, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lots == nil {
		info, err := b.client.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return lotSize{}, fmt.Errorf("exchange info: %w", err)
		}
		lots := make(map[string]lotSize, len(info.Symbols))
		for i := range info.Symbols {
			s := &info.Symbols[i]
			f := s.LotSizeFilter()
			if f == nil {
				continue
			}
			step, err := decimal.NewFromString(f.StepSize)
			if err != nil || !step.IsPositive() {
				continue
			}
			minQty, _ := decimal.NewFromString(f.MinQuantity)
			lots[s.Symbol] = lotSize{step: step, min: minQty, precision: stepPrecision(step)}
		}
		b.lots = lots
	}
	lot, ok := b.lots[symbol]
	if !ok {
		return lotSize{}, fmt.Errorf("%w: no LOT_SIZE filter for %s", ErrInvalidOrder, symbol)
	}
	return lot, nil
}

// stepPrecision is the number of decimals a step size carries, e.g. 0.001 -> 3.
func stepPrecision(step decimal.Decimal) int32 {
	f := step.InexactFloat64()
	if f >= 1 {
		return 0
	}
	return int32(math.Ceil(-math.Log10(f) - 1e-9))
}

func parsePositive(raw string, fallback float64) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
