package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"futuresbot-go/internal/portfolio"
	"futuresbot-go/internal/risk"
	"futuresbot-go/internal/signal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSignalsTables(t *testing.T) {
	var buf bytes.Buffer
	Signals(&buf, []signal.Signal{{Symbol: "BTCUSDT", ChangePercent: d("4.5"), QuoteVolume: d("20000000"), LastPrice: d("50000")}}, nil)
	out := buf.String()
	for _, want := range []string{"BUY SIGNALS (1)", "SELL SIGNALS (0)", "BTCUSDT", "4.50", "20000000", "none"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestVolumeSpikesTable(t *testing.T) {
	var buf bytes.Buffer
	VolumeSpikes(&buf, []signal.MarketSnapshot{
		{Symbol: "ETHUSDT", QuoteVolume: d("300000000"), PriceChangePercent: d("-1.2"), LastPrice: d("3000")},
		{Symbol: "BTCUSDT", QuoteVolume: d("150000000"), PriceChangePercent: d("0.4"), LastPrice: d("50000")},
	})
	out := buf.String()
	if strings.Index(out, "ETHUSDT") > strings.Index(out, "BTCUSDT") {
		t.Fatalf("rows out of order:\n%s", out)
	}
	if !strings.Contains(out, "VOLUME SPIKES (2)") || !strings.Contains(out, "-1.20") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestPositionsAndStatsTables(t *testing.T) {
	var buf bytes.Buffer
	Positions(&buf, portfolio.Summary{
		TotalPositions:     1,
		TotalUnrealizedPnL: 60,
		Positions: []portfolio.PositionView{{Symbol: "BTCUSDT", Side: risk.Long, Quantity: 0.02, EntryPrice: 50000, CurrentPrice: 53000, UnrealizedPnL: 60, PnLPercentage: 6}},
	})
	Stats(&buf, portfolio.Stats{TotalValue: 10060, WinRate: 66.666, ClosingTrades: 3, MaxDrawdown: 1.5})
	out := buf.String()
	for _, want := range []string{"OPEN POSITIONS (1)", "LONG", "53000.0000", "+6.00%", "+60.00", "PORTFOLIO", "$10060.00", "66.67% (3 closes)", "max 1.50%"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
