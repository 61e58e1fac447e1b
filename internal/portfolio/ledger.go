package portfolio

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"futuresbot-go/internal/execution"
	"futuresbot-go/internal/risk"
)

const epsilon = 1e-9

// Ledger tracks balance, open positions and the append-only trade history.
// All methods are safe for concurrent use; mutations are serialized.
type Ledger struct {
	mu             sync.Mutex
	initialBalance float64
	balance        float64
	equity         float64
	peakEquity     float64
	maxDrawdown    float64
	positions      map[string]*Position
	trades         []Trade
	now            func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for position and trade timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger constructs a ledger funded with initialBalance.
func NewLedger(initialBalance float64, opts ...Option) *Ledger {
	l := &Ledger{
		initialBalance: initialBalance,
		balance:        initialBalance,
		equity:         initialBalance,
		peakEquity:     initialBalance,
		positions:      make(map[string]*Position),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InitialBalance returns the bankroll the ledger was created with.
func (l *Ledger) InitialBalance() float64 { return l.initialBalance }

// AddTrade applies an executed trade and returns the symbol's resulting position,
// or nil when the symbol ends flat.
//
// A SELL against a LONG larger than the position closes it and opens a SHORT for the
// excess at the trade price; a BUY against a SHORT mirrors that.
func (l *Ledger) AddTrade(trade Trade) (*Position, error) {
	if err := trade.validate(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addTradeLocked(trade)
}

func (l *Ledger) addTradeLocked(trade Trade) (*Position, error) {
	now := l.now()
	if trade.Timestamp.IsZero() {
		trade.Timestamp = At(now)
	}
	trade.PnL = 0

	pos := l.positions[trade.Symbol]
	if pos == nil {
		if trade.Side != execution.Buy {
			return nil, fmt.Errorf("%w: %s %s", ErrNoPosition, trade.Side, trade.Symbol)
		}
		pos = &Position{
			Symbol:       trade.Symbol,
			Side:         risk.Long,
			Quantity:     trade.Quantity,
			EntryPrice:   trade.Price,
			CurrentPrice: trade.Price,
			EntryTime:    At(now),
			LastUpdate:   At(now),
		}
		l.positions[trade.Symbol] = pos
	} else {
		var closed bool
		trade.PnL, closed = l.apply(pos, trade, now)
		if closed {
			delete(l.positions, trade.Symbol)
			pos = nil
		}
	}

	l.trades = append(l.trades, trade)
	notional := trade.Quantity * trade.Price
	if trade.Side == execution.Buy {
		l.balance -= notional + trade.Fee
	} else {
		l.balance += notional - trade.Fee
	}

	if pos == nil {
		return nil, nil
	}
	cp := *pos
	return &cp, nil
}

// apply mutates pos for a trade on an existing position and returns the realized PnL.
func (l *Ledger) apply(pos *Position, trade Trade, now time.Time) (pnl float64, closed bool) {
	adding := trade.Side == pos.EntrySide()
	pos.LastUpdate = At(now)

	if adding {
		total := pos.Quantity + trade.Quantity
		pos.EntryPrice = (pos.Quantity*pos.EntryPrice + trade.Quantity*trade.Price) / total
		pos.Quantity = total
		pos.UnrealizedPnL = unrealized(pos)
		return 0, false
	}

	closeQty := min(trade.Quantity, pos.Quantity)
	pnl = directional(pos.Side, pos.EntryPrice, trade.Price) * closeQty
	pos.RealizedPnL += pnl
	remaining := pos.Quantity - trade.Quantity

	switch {
	case remaining > epsilon:
		pos.Quantity = remaining
		pos.UnrealizedPnL = unrealized(pos)
	case remaining >= -epsilon:
		return pnl, true
	default:
		if pos.Side == risk.Long {
			pos.Side = risk.Short
		} else {
			pos.Side = risk.Long
		}
		pos.Quantity = -remaining
		pos.EntryPrice = trade.Price
		pos.CurrentPrice = trade.Price
		pos.UnrealizedPnL = 0
		pos.EntryTime = At(now)
	}
	return pnl, false
}

// directional is the per-unit PnL of moving from entry to price on side.
func directional(side risk.Side, entry, price float64) float64 {
	if side == risk.Short {
		return entry - price
	}
	return price - entry
}

func unrealized(pos *Position) float64 {
	if pos.CurrentPrice <= 0 {
		return 0
	}
	return directional(pos.Side, pos.EntryPrice, pos.CurrentPrice) * pos.Quantity
}

// UpdatePosition marks a position to price. It returns nil, nil when the symbol is flat.
func (l *Ledger) UpdatePosition(symbol string, price float64) (*Position, error) {
	if price <= 0 {
		return nil, fmt.Errorf("%w: %s %.8f", risk.ErrInvalidPrice, symbol, price)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.positions[symbol]
	if pos == nil {
		return nil, nil
	}
	pos.CurrentPrice = price
	pos.UnrealizedPnL = unrealized(pos)
	pos.LastUpdate = At(l.now())
	cp := *pos
	return &cp, nil
}

// ClosePosition books an opposite-side trade for the full position at price.
func (l *Ledger) ClosePosition(symbol string, price float64, orderID string) (Trade, error) {
	if price <= 0 {
		return Trade{}, fmt.Errorf("%w: %s %.8f", risk.ErrInvalidPrice, symbol, price)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.positions[symbol]
	if pos == nil {
		return Trade{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	now := l.now()
	side := pos.EntrySide().Opposite()
	if orderID == "" {
		orderID = "CLOSE_" + symbol + "_" + strconv.FormatInt(now.Unix(), 10)
	}
	trade := Trade{
		Symbol:    symbol,
		Side:      side,
		Quantity:  pos.Quantity,
		Price:     price,
		Timestamp: At(now),
		OrderID:   orderID,
	}
	if _, err := l.addTradeLocked(trade); err != nil {
		return Trade{}, err
	}
	return l.trades[len(l.trades)-1], nil
}

// Position returns a copy of the open position for symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.positions[symbol]
	if pos == nil {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions ordered by symbol.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedPositionsLocked()
}

func (l *Ledger) sortedPositionsLocked() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Trades returns a copy of the trade history in execution order.
func (l *Ledger) Trades() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// LastTrade returns the most recently booked trade.
func (l *Ledger) LastTrade() (Trade, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.trades) == 0 {
		return Trade{}, false
	}
	return l.trades[len(l.trades)-1], true
}

// Balance returns cash after fees and trade notionals.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Stats aggregates the book and advances the peak-equity / max-drawdown watermark.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var unrealizedTotal, positionValue float64
	for _, pos := range l.positions {
		unrealizedTotal += pos.UnrealizedPnL
		// short proceeds already sit in balance; the open short is a liability
		if pos.Side == risk.Short {
			positionValue -= pos.Quantity * pos.CurrentPrice
		} else {
			positionValue += pos.Quantity * pos.CurrentPrice
		}
	}

	var realized float64
	var wins, closing int
	for _, t := range l.trades {
		realized += t.PnL
		if t.PnL != 0 {
			closing++
			if t.PnL > 0 {
				wins++
			}
		}
	}

	total := l.balance + positionValue
	l.equity = total
	if total > l.peakEquity {
		l.peakEquity = total
	}
	var drawdown float64
	if l.peakEquity > 0 {
		drawdown = (l.peakEquity - total) / l.peakEquity
	}
	if drawdown > l.maxDrawdown {
		l.maxDrawdown = drawdown
	}

	var winRate float64
	if closing > 0 {
		winRate = float64(wins) / float64(closing) * 100
	}

	now := l.now()
	return Stats{
		TotalValue:       total,
		AvailableBalance: l.balance,
		UnrealizedPnL:    unrealizedTotal,
		RealizedPnL:      realized,
		TotalPnL:         unrealizedTotal + realized,
		PositionsCount:   len(l.positions),
		DailyPnL:         l.periodPnLLocked(now.Add(-24 * time.Hour)),
		WeeklyPnL:        l.periodPnLLocked(now.Add(-7 * 24 * time.Hour)),
		MonthlyPnL:       l.periodPnLLocked(now.Add(-30 * 24 * time.Hour)),
		MaxDrawdown:      l.maxDrawdown * 100,
		CurrentDrawdown:  drawdown * 100,
		WinRate:          winRate,
		TotalTrades:      len(l.trades),
		ClosingTrades:    closing,
	}
}

func (l *Ledger) periodPnLLocked(cutoff time.Time) float64 {
	var sum float64
	for _, t := range l.trades {
		if !t.Timestamp.Before(cutoff) {
			sum += t.PnL
		}
	}
	return sum
}

// PositionSummary lists open positions with their percentage PnL.
func (l *Ledger) PositionSummary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := l.sortedPositionsLocked()
	views := make([]PositionView, 0, len(positions))
	var total float64
	for _, pos := range positions {
		var pct float64
		if basis := pos.Quantity * pos.EntryPrice; basis > 0 {
			pct = pos.UnrealizedPnL / basis * 100
		}
		views = append(views, PositionView{
			Symbol:        pos.Symbol,
			Side:          pos.Side,
			Quantity:      pos.Quantity,
			EntryPrice:    pos.EntryPrice,
			CurrentPrice:  pos.CurrentPrice,
			UnrealizedPnL: pos.UnrealizedPnL,
			PnLPercentage: pct,
		})
		total += pos.UnrealizedPnL
	}
	return Summary{Positions: views, TotalPositions: len(views), TotalUnrealizedPnL: total}
}

// State snapshots the ledger for persistence.
func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	positions := make(map[string]Position, len(l.positions))
	for sym, pos := range l.positions {
		positions[sym] = *pos
	}
	trades := make([]Trade, len(l.trades))
	copy(trades, l.trades)
	return State{
		Balance:      l.balance,
		Equity:       l.equity,
		PeakEquity:   l.peakEquity,
		MaxDrawdown:  l.maxDrawdown,
		Positions:    positions,
		TradeHistory: trades,
	}
}

// Restore replaces the ledger contents with a persisted state.
// Positions without a positive quantity and entry price are rejected.
func (l *Ledger) Restore(s State) error {
	positions := make(map[string]*Position, len(s.Positions))
	for sym, pos := range s.Positions {
		if pos.Quantity <= 0 {
			return fmt.Errorf("%w: restored %s quantity %.8f", ErrInvalidQuantity, sym, pos.Quantity)
		}
		if pos.EntryPrice <= 0 {
			return fmt.Errorf("%w: restored %s entry %.8f", risk.ErrInvalidPrice, sym, pos.EntryPrice)
		}
		if pos.Side != risk.Long && pos.Side != risk.Short {
			return fmt.Errorf("%w: restored %s side %q", risk.ErrInvalidSide, sym, pos.Side)
		}
		p := pos
		if p.Symbol == "" {
			p.Symbol = sym
		}
		positions[sym] = &p
	}
	trades := make([]Trade, len(s.TradeHistory))
	copy(trades, s.TradeHistory)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = s.Balance
	l.equity = s.Equity
	l.peakEquity = s.PeakEquity
	if l.peakEquity < l.equity {
		l.peakEquity = l.equity
	}
	l.maxDrawdown = s.MaxDrawdown
	l.positions = positions
	l.trades = trades
	return nil
}
