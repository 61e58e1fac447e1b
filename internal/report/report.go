// Package report renders console tables for signals, positions and portfolio stats.
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"futuresbot-go/internal/portfolio"
	"futuresbot-go/internal/signal"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// Signals prints one table per direction. Empty directions print a single placeholder row.
func Signals(w io.Writer, buy, sell []signal.Signal) {
	signalTable(w, "BUY SIGNALS", buy)
	fmt.Fprintln(w)
	signalTable(w, "SELL SIGNALS", sell)
}

func signalTable(w io.Writer, title string, sigs []signal.Signal) {
	t := newTable(w, fmt.Sprintf("%s (%d)", title, len(sigs)))
	t.AppendHeader(table.Row{"Symbol", "Change %", "Quote Volume", "Last Price"})
	for _, s := range sigs {
		t.AppendRow(table.Row{s.Symbol, s.ChangePercent.StringFixed(2), s.QuoteVolume.StringFixed(0), s.LastPrice.String()})
	}
	if len(sigs) == 0 {
		t.AppendRow(table.Row{"none", "", "", ""})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 12, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
}

// VolumeSpikes prints snapshots ranked by quote volume.
func VolumeSpikes(w io.Writer, snaps []signal.MarketSnapshot) {
	t := newTable(w, fmt.Sprintf("VOLUME SPIKES (%d)", len(snaps)))
	t.AppendHeader(table.Row{"#", "Symbol", "Quote Volume", "Change %"})
	for i, s := range snaps {
		t.AppendRow(table.Row{i + 1, s.Symbol, s.QuoteVolume.StringFixed(0), s.PriceChangePercent.StringFixed(2)})
	}
	t.Render()
}

// Positions prints the open book.
func Positions(w io.Writer, sum portfolio.Summary) {
	t := newTable(w, fmt.Sprintf("OPEN POSITIONS (%d)", sum.TotalPositions))
	t.AppendHeader(table.Row{"Symbol", "Side", "Qty", "Entry", "Mark", "Unrealized", "PnL %"})
	for _, p := range sum.Positions {
		t.AppendRow(table.Row{
			p.Symbol, p.Side,
			fmt.Sprintf("%.6f", p.Quantity),
			fmt.Sprintf("%.4f", p.EntryPrice),
			fmt.Sprintf("%.4f", p.CurrentPrice),
			fmt.Sprintf("%+.2f", p.UnrealizedPnL),
			fmt.Sprintf("%+.2f%%", p.PnLPercentage),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", fmt.Sprintf("%+.2f", sum.TotalUnrealizedPnL), ""})
	t.Render()
}

// Stats prints the portfolio aggregate.
func Stats(w io.Writer, st portfolio.Stats) {
	t := newTable(w, "PORTFOLIO")
	t.AppendRows([]table.Row{
		{"Total Value", fmt.Sprintf("$%.2f", st.TotalValue)},
		{"Available Balance", fmt.Sprintf("$%.2f", st.AvailableBalance)},
		{"Open Positions", st.PositionsCount},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Realized PnL", fmt.Sprintf("%+.2f", st.RealizedPnL)},
		{"Unrealized PnL", fmt.Sprintf("%+.2f", st.UnrealizedPnL)},
		{"Total PnL", fmt.Sprintf("%+.2f", st.TotalPnL)},
		{"Daily / Weekly / Monthly", fmt.Sprintf("%+.2f / %+.2f / %+.2f", st.DailyPnL, st.WeeklyPnL, st.MonthlyPnL)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Win Rate", fmt.Sprintf("%.2f%% (%d closes)", st.WinRate, st.ClosingTrades)},
		{"Trades", st.TotalTrades},
		{"Drawdown", fmt.Sprintf("%.2f%% (max %.2f%%)", st.CurrentDrawdown, st.MaxDrawdown)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 24, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignLeft},
	})
	t.Render()
}
