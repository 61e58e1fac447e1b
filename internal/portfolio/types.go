// Package portfolio keeps the authoritative book of open positions and the trade history they came from.
package portfolio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"futuresbot-go/internal/execution"
	"futuresbot-go/internal/risk"
)

var (
	// ErrNoPosition rejects a reducing trade, or a close, for a flat symbol.
	ErrNoPosition      = errors.New("no open position")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidFee      = errors.New("fee must be non-negative")
	ErrInvalidSide     = errors.New("trade side must be BUY or SELL")
	ErrMissingSymbol   = errors.New("trade symbol missing")
)

// Timestamp is a time that also decodes the naive ISO format found in older state files.
type Timestamp struct{ time.Time }

// At wraps t.
func At(t time.Time) Timestamp { return Timestamp{t} }

var legacyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(ts.Time.Format(time.RFC3339Nano))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		ts.Time = time.Time{}
		return nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			ts.Time = t
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", raw)
}

// Position is an open, quantity-bearing holding in one symbol.
type Position struct {
	Symbol        string    `json:"symbol"`
	Side          risk.Side `json:"side"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	EntryTime     Timestamp `json:"entry_time"`
	LastUpdate    Timestamp `json:"last_update"`
}

// EntrySide is the order side that opened p. Its Opposite unwinds it.
func (p Position) EntrySide() execution.Side {
	if p.Side == risk.Short {
		return execution.Sell
	}
	return execution.Buy
}

// Trade is an executed fill. PnL is the realized amount it locked in, zero for opening or adding.
type Trade struct {
	Symbol    string         `json:"symbol"`
	Side      execution.Side `json:"side"`
	Quantity  float64        `json:"quantity"`
	Price     float64        `json:"price"`
	Fee       float64        `json:"fee"`
	Timestamp Timestamp      `json:"timestamp"`
	OrderID   string         `json:"order_id"`
	PnL       float64        `json:"pnl"`
}

// TradeFromFill converts a sink fill into a ledger trade.
func TradeFromFill(f execution.Fill) Trade {
	return Trade{
		Symbol:    f.Symbol,
		Side:      f.Side,
		Quantity:  f.Qty,
		Price:     f.Price,
		Fee:       f.Fee,
		Timestamp: At(f.Ts),
		OrderID:   f.OrderID,
	}
}

func (t Trade) validate() error {
	if t.Symbol == "" {
		return ErrMissingSymbol
	}
	if t.Side != execution.Buy && t.Side != execution.Sell {
		return fmt.Errorf("%w: %q", ErrInvalidSide, t.Side)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("%w: %s %.8f", ErrInvalidQuantity, t.Symbol, t.Quantity)
	}
	if t.Price <= 0 {
		return fmt.Errorf("%w: %s %.8f", risk.ErrInvalidPrice, t.Symbol, t.Price)
	}
	if t.Fee < 0 {
		return fmt.Errorf("%w: %s %.8f", ErrInvalidFee, t.Symbol, t.Fee)
	}
	return nil
}

// Stats is an aggregate view of the book. Percent fields are 0-100.
type Stats struct {
	TotalValue       float64 `json:"total_value"`
	AvailableBalance float64 `json:"available_balance"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	RealizedPnL      float64 `json:"realized_pnl"`
	TotalPnL         float64 `json:"total_pnl"`
	PositionsCount   int     `json:"positions_count"`
	DailyPnL         float64 `json:"daily_pnl"`
	WeeklyPnL        float64 `json:"weekly_pnl"`
	MonthlyPnL       float64 `json:"monthly_pnl"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	CurrentDrawdown  float64 `json:"current_drawdown"`
	WinRate          float64 `json:"win_rate"`
	TotalTrades      int     `json:"total_trades"`
	ClosingTrades    int     `json:"closing_trades"`
}

// PositionView is one row of a Summary.
type PositionView struct {
	Symbol        string    `json:"symbol"`
	Side          risk.Side `json:"side"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	PnLPercentage float64   `json:"pnl_percentage"`
}

// Summary lists open positions for alerting collaborators.
type Summary struct {
	Positions          []PositionView `json:"positions"`
	TotalPositions     int            `json:"total_positions"`
	TotalUnrealizedPnL float64        `json:"total_unrealized_pnl"`
}

// State is the durable document written by FileStore.
type State struct {
	Balance      float64             `json:"balance"`
	Equity       float64             `json:"equity"`
	PeakEquity   float64             `json:"peak_equity"`
	MaxDrawdown  float64             `json:"max_drawdown"` // fraction
	Positions    map[string]Position `json:"positions"`
	TradeHistory []Trade             `json:"trade_history"`
}
