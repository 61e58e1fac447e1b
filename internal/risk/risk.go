// Package risk decides when open positions must be exited and caps order size.
package risk

import (
	"errors"
	"fmt"
	"math"
)

// Side is the direction of an open position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// ExitReason explains why a position must be closed. ExitNone means hold.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
)

var (
	ErrInvalidPrice  = errors.New("price must be positive")
	ErrInvalidSide   = errors.New("side must be LONG or SHORT")
	ErrInvalidLimits = errors.New("invalid risk limits")
)

// Limits is read-only configuration for a Guard.
type Limits struct {
	StopLossPct   float64 // (0,1]
	TakeProfitPct float64 // (0,1]
	// MaxNotionalPerTrade caps a single order; 0 disables the cap.
	MaxNotionalPerTrade float64
	// MaxDrawdownPct halts new entries once breached; 0 disables.
	MaxDrawdownPct float64
}

// Allow reports whether a single order's notional fits under the per-trade cap.
func (l Limits) Allow(notional float64) bool {
	if l.MaxNotionalPerTrade <= 0 {
		return true
	}
	return notional <= l.MaxNotionalPerTrade
}

// Guard evaluates stop-loss and take-profit exits. It holds no mutable state.
type Guard struct {
	limits Limits
}

// NewGuard validates limits and returns a guard.
func NewGuard(limits Limits) (*Guard, error) {
	if limits.StopLossPct <= 0 || limits.StopLossPct > 1 {
		return nil, fmt.Errorf("%w: stop loss %.4f not in (0,1]", ErrInvalidLimits, limits.StopLossPct)
	}
	if limits.TakeProfitPct <= 0 || limits.TakeProfitPct > 1 {
		return nil, fmt.Errorf("%w: take profit %.4f not in (0,1]", ErrInvalidLimits, limits.TakeProfitPct)
	}
	if limits.MaxNotionalPerTrade < 0 || limits.MaxDrawdownPct < 0 || limits.MaxDrawdownPct > 1 {
		return nil, fmt.Errorf("%w: caps must be non-negative", ErrInvalidLimits)
	}
	return &Guard{limits: limits}, nil
}

// Limits returns the configured limits.
func (g *Guard) Limits() Limits { return g.limits }

// PnLPercent returns directional fractional PnL (0.05 is +5%).
func PnLPercent(entry, current float64, side Side) (float64, error) {
	if entry <= 0 || current <= 0 {
		return 0, ErrInvalidPrice
	}
	switch side {
	case Long:
		return (current - entry) / entry, nil
	case Short:
		return (entry - current) / entry, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
}

// ShouldExit returns the exit reason for a position, or ExitNone to hold.
// Stop loss is checked before take profit.
func (g *Guard) ShouldExit(entry, current float64, side Side) (ExitReason, error) {
	pnl, err := PnLPercent(entry, current, side)
	if err != nil {
		return ExitNone, err
	}
	if pnl <= -g.limits.StopLossPct {
		return ExitStopLoss, nil
	}
	if pnl >= g.limits.TakeProfitPct {
		return ExitTakeProfit, nil
	}
	return ExitNone, nil
}

// PositionSize returns a quantity risking riskPerTrade of balance down to the stop.
// The result is capped by the per-trade notional and by 95% of balance.
func (g *Guard) PositionSize(balance, riskPerTrade, entry float64) (float64, error) {
	if entry <= 0 {
		return 0, ErrInvalidPrice
	}
	if balance <= 0 || riskPerTrade <= 0 {
		return 0, nil
	}
	qty := (balance * riskPerTrade) / (entry * g.limits.StopLossPct)
	if g.limits.MaxNotionalPerTrade > 0 {
		qty = math.Min(qty, g.limits.MaxNotionalPerTrade/entry)
	}
	qty = math.Min(qty, balance*0.95/entry)
	return qty, nil
}

// DrawdownBreached reports whether the fractional drawdown has reached the kill switch.
func (g *Guard) DrawdownBreached(drawdown float64) bool {
	return g.limits.MaxDrawdownPct > 0 && drawdown >= g.limits.MaxDrawdownPct
}
