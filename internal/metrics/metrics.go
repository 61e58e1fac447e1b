// Package metrics registers the bot's Prometheus collectors and serves /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TickersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futuresbot_tickers_total", Help: "Ticker rows fetched from market data sources"},
		[]string{"source"},
	)
	ParseErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "futuresbot_ticker_parse_errors_total", Help: "Ticker rows skipped because a field failed to parse"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futuresbot_signals_total", Help: "Breakout signals emitted"},
		[]string{"direction"},
	)
	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futuresbot_exits_total", Help: "Positions closed by the risk guard"},
		[]string{"reason"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futuresbot_orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
	OrderErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "futuresbot_order_errors_total", Help: "Orders rejected by the sink"},
		[]string{"symbol"},
	)
	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "futuresbot_equity", Help: "Balance plus marked position value"},
	)
	UnrealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "futuresbot_unrealized_pnl", Help: "Sum of unrealized PnL over open positions"},
	)
	RealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "futuresbot_realized_pnl", Help: "Sum of realized PnL over trade history"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "futuresbot_open_positions", Help: "Number of open positions"},
	)
	DrawdownPct = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "futuresbot_drawdown_pct", Help: "Current drawdown from peak equity in percent"},
	)
)

func init() {
	prometheus.MustRegister(
		TickersTotal, ParseErrorsTotal, SignalsTotal, ExitsTotal,
		OrdersTotal, OrderErrorsTotal,
		Equity, UnrealizedPnL, RealizedPnL, OpenPositions, DrawdownPct,
	)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
