// Package signal standardizes payloads shared between data ingestion and the breakout engine.
package signal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side a signal recommends.
type Direction string

const (
	// Buy marks an upside breakout.
	Buy Direction = "BUY"
	// Sell marks a downside breakout.
	Sell Direction = "SELL"
)

// ErrParse is matched by every *ParseError.
var ErrParse = errors.New("parse error")

// Ticker is a raw 24h ticker row exactly as a source delivered it.
type Ticker struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
	LastPrice          string `json:"lastPrice"`
}

// MarketSnapshot is one symbol's validated 24h ticker at a point in time.
type MarketSnapshot struct {
	Symbol             string
	PriceChangePercent decimal.Decimal
	QuoteVolume        decimal.Decimal
	LastPrice          decimal.Decimal
}

// Signal expresses a breakout classification produced by the engine.
type Signal struct {
	Symbol        string          `json:"symbol"`
	Direction     Direction       `json:"direction"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	QuoteVolume   decimal.Decimal `json:"quote_volume"`
	LastPrice     decimal.Decimal `json:"last_price"`
	Ts            time.Time       `json:"ts"`
}

// ParseError describes a single rejected ticker row.
type ParseError struct {
	Symbol string
	Field  string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	sym := e.Symbol
	if sym == "" {
		sym = "<unknown>"
	}
	if e.Err != nil {
		return fmt.Sprintf("parse %s.%s=%q: %v", sym, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("parse %s.%s=%q", sym, e.Field, e.Value)
}

// Is lets errors.Is(err, ErrParse) match.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

func (e *ParseError) Unwrap() error { return e.Err }

// NewSnapshot validates the snapshot invariants: a symbol, volume >= 0 and price > 0.
func NewSnapshot(symbol string, changePct, quoteVolume, lastPrice decimal.Decimal) (MarketSnapshot, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return MarketSnapshot{}, &ParseError{Field: "symbol", Err: errors.New("missing")}
	}
	if quoteVolume.IsNegative() {
		return MarketSnapshot{}, &ParseError{Symbol: symbol, Field: "quoteVolume", Value: quoteVolume.String(), Err: errors.New("negative")}
	}
	if !lastPrice.IsPositive() {
		return MarketSnapshot{}, &ParseError{Symbol: symbol, Field: "lastPrice", Value: lastPrice.String(), Err: errors.New("must be positive")}
	}
	return MarketSnapshot{
		Symbol:             symbol,
		PriceChangePercent: changePct,
		QuoteVolume:        quoteVolume,
		LastPrice:          lastPrice,
	}, nil
}

// ParseTicker converts string fields into a snapshot.
func ParseTicker(t Ticker) (MarketSnapshot, error) {
	sym := strings.TrimSpace(t.Symbol)
	change, err := parseField(sym, "priceChangePercent", t.PriceChangePercent)
	if err != nil {
		return MarketSnapshot{}, err
	}
	volume, err := parseField(sym, "quoteVolume", t.QuoteVolume)
	if err != nil {
		return MarketSnapshot{}, err
	}
	price, err := parseField(sym, "lastPrice", t.LastPrice)
	if err != nil {
		return MarketSnapshot{}, err
	}
	return NewSnapshot(sym, change, volume, price)
}

func parseField(symbol, field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, &ParseError{Symbol: symbol, Field: field, Err: errors.New("missing")}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &ParseError{Symbol: symbol, Field: field, Value: raw, Err: err}
	}
	return d, nil
}
