package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"futuresbot-go/internal/execution"
	"futuresbot-go/internal/portfolio"
	"futuresbot-go/internal/risk"
	"futuresbot-go/internal/signal"
)

const timeLayout = "2006-01-02 15:04:05 MST"

var esc = html.EscapeString

// TradeMessage announces an executed fill.
func TradeMessage(t portfolio.Trade) Message {
	mark := "🟢"
	if t.Side != execution.Buy {
		mark = "🔴"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", mark, esc(string(t.Side)), esc(t.Symbol))
	fmt.Fprintf(&b, "Quantity: %s\n", formatQty(t.Quantity))
	fmt.Fprintf(&b, "Price: %s\n", formatMoney(t.Price))
	if t.Fee > 0 {
		fmt.Fprintf(&b, "Fee: %s\n", formatMoney(t.Fee))
	}
	if t.PnL != 0 {
		fmt.Fprintf(&b, "Realized PnL: %s\n", formatSigned(t.PnL))
	}
	if t.OrderID != "" {
		fmt.Fprintf(&b, "Order ID: <code>%s</code>\n", esc(t.OrderID))
	}
	fmt.Fprintf(&b, "Time: %s", t.Timestamp.UTC().Format(timeLayout))
	return Message{Title: "Trade Executed", Body: b.String()}
}

// ExitMessage reports a stop-loss or take-profit close.
func ExitMessage(reason risk.ExitReason, trade portfolio.Trade, entry float64) Message {
	mark := "🛑"
	if reason == risk.ExitTakeProfit {
		mark = "🎯"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s on %s\n", mark, esc(string(reason)), esc(trade.Symbol))
	fmt.Fprintf(&b, "Entry: %s\n", formatMoney(entry))
	fmt.Fprintf(&b, "Exit: %s\n", formatMoney(trade.Price))
	fmt.Fprintf(&b, "Quantity: %s\n", formatQty(trade.Quantity))
	fmt.Fprintf(&b, "PnL: %s", formatSigned(trade.PnL))
	return Message{Title: "Exit Triggered", Body: b.String()}
}

// PnLMessage reports the mark-to-market of one open position.
func PnLMessage(v portfolio.PositionView) Message {
	mark := "💰"
	if v.UnrealizedPnL < 0 {
		mark = "📉"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", mark, esc(v.Symbol), esc(string(v.Side)))
	fmt.Fprintf(&b, "PnL: %s (%+.2f%%)\n", formatSigned(v.UnrealizedPnL), v.PnLPercentage)
	fmt.Fprintf(&b, "Entry: %s\n", formatMoney(v.EntryPrice))
	fmt.Fprintf(&b, "Current: %s", formatMoney(v.CurrentPrice))
	return Message{Title: "PnL Update", Body: b.String()}
}

// ErrorMessage reports a failure in the named operation.
func ErrorMessage(context string, err error, at time.Time) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 Context: %s\n", esc(context))
	fmt.Fprintf(&b, "Error: <code>%s</code>\n", esc(fmt.Sprint(err)))
	fmt.Fprintf(&b, "Time: %s\n\n", at.UTC().Format(timeLayout))
	b.WriteString("Please check the bot logs for more details.")
	return Message{Title: "Error Alert", Body: b.String()}
}

var statusMarks = map[string]string{
	"STARTED": "🟢",
	"STOPPED": "🔴",
	"ERROR":   "🚨",
	"WARNING": "🟡",
	"INFO":    "ℹ️",
}

// StatusMessage reports a lifecycle change such as STARTED or STOPPED.
func StatusMessage(name, status, details string, at time.Time) Message {
	status = strings.ToUpper(status)
	mark, ok := statusMarks[status]
	if !ok {
		mark = "📊"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", mark, esc(name))
	fmt.Fprintf(&b, "Time: %s", at.UTC().Format(timeLayout))
	if details != "" {
		fmt.Fprintf(&b, "\n\nDetails: %s", esc(details))
	}
	return Message{Title: "Bot Status: " + status, Body: b.String()}
}

// SignalsMessage digests one cycle's breakout lists. The second return is false when both are empty.
func SignalsMessage(buy, sell []signal.Signal) (Message, bool) {
	if len(buy) == 0 && len(sell) == 0 {
		return Message{}, false
	}
	var b strings.Builder
	writeSignals(&b, "🟢 BUY", buy)
	if len(buy) > 0 && len(sell) > 0 {
		b.WriteString("\n")
	}
	writeSignals(&b, "🔴 SELL", sell)
	return Message{Title: fmt.Sprintf("Signals: %d buy / %d sell", len(buy), len(sell)), Body: strings.TrimRight(b.String(), "\n")}, true
}

func writeSignals(b *strings.Builder, label string, sigs []signal.Signal) {
	if len(sigs) == 0 {
		return
	}
	fmt.Fprintf(b, "%s\n", label)
	for _, s := range sigs {
		fmt.Fprintf(b, "• %s %s%% vol %s @ %s\n",
			esc(s.Symbol), s.ChangePercent.StringFixed(2), s.QuoteVolume.StringFixed(0), s.LastPrice.String())
	}
}

// PortfolioMessage summarizes stats and open positions.
func PortfolioMessage(st portfolio.Stats, sum portfolio.Summary) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Total value: %s\n", formatMoney(st.TotalValue))
	fmt.Fprintf(&b, "Available: %s\n", formatMoney(st.AvailableBalance))
	fmt.Fprintf(&b, "Total PnL: %s (realized %s, unrealized %s)\n",
		formatSigned(st.TotalPnL), formatSigned(st.RealizedPnL), formatSigned(st.UnrealizedPnL))
	fmt.Fprintf(&b, "Daily PnL: %s\n", formatSigned(st.DailyPnL))
	fmt.Fprintf(&b, "Win rate: %.2f%% over %d closes\n", st.WinRate, st.ClosingTrades)
	fmt.Fprintf(&b, "Drawdown: %.2f%% (max %.2f%%)\n", st.CurrentDrawdown, st.MaxDrawdown)
	fmt.Fprintf(&b, "Open positions: %d", sum.TotalPositions)
	for _, p := range sum.Positions {
		fmt.Fprintf(&b, "\n• %s %s %s @ %s → %s (%+.2f%%)",
			esc(p.Symbol), esc(string(p.Side)), formatQty(p.Quantity),
			formatMoney(p.EntryPrice), formatMoney(p.CurrentPrice), p.PnLPercentage)
	}
	return Message{Title: "Portfolio Summary", Body: b.String()}
}

func formatMoney(v float64) string {
	if v != 0 && v > -1 && v < 1 {
		return fmt.Sprintf("%.6f USDT", v)
	}
	return fmt.Sprintf("%.2f USDT", v)
}

func formatSigned(v float64) string { return fmt.Sprintf("%+.2f USDT", v) }

func formatQty(v float64) string {
	s := strings.TrimRight(fmt.Sprintf("%.8f", v), "0")
	return strings.TrimSuffix(s, ".")
}
