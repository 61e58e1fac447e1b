// Package bot runs the polling cycle that turns ticker batches into signals, exits and paper or live trades.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"futuresbot-go/internal/exchange"
	"futuresbot-go/internal/execution"
	"futuresbot-go/internal/journal"
	"futuresbot-go/internal/metrics"
	"futuresbot-go/internal/notify"
	"futuresbot-go/internal/portfolio"
	"futuresbot-go/internal/risk"
	"futuresbot-go/internal/signal"
)

const (
	reasonSellSignal = "SELL_SIGNAL"
	reasonBuySignal  = "BUY_SIGNAL"
)

// Deps are the collaborators a Runner drives. Store, journals and Notifier are optional.
type Deps struct {
	Source   exchange.Source
	Engine   *signal.Engine
	Guard    *risk.Guard
	Ledger   *portfolio.Ledger
	Executor *execution.Executor
	Store    *portfolio.FileStore
	Signals  *journal.JSONLRecorder
	Trades   *journal.JSONLRecorder
	Notifier *notify.Notifier
	Log      zerolog.Logger
}

// Settings tune order sizing and cadence.
type Settings struct {
	Name             string
	OrderNotional    float64
	MaxOpenPositions int // 0 means unlimited
	PollInterval     time.Duration
	// SummaryEvery sends a portfolio summary every N cycles; 0 disables.
	SummaryEvery int
}

// Exit is a guard-triggered close.
type Exit struct {
	Reason risk.ExitReason
	Entry  float64
	Trade  portfolio.Trade
}

// Cycle reports what one RunOnce did.
type Cycle struct {
	At       time.Time
	Fetched  int
	Rejected int
	Buy      []signal.Signal
	Sell     []signal.Signal
	Exits    []Exit
	Closed   []portfolio.Trade
	Opened   []portfolio.Trade
	Skipped  map[string]string
	Halted   bool
	Stats    portfolio.Stats
}

// Runner owns the bot loop. RunOnce must not be called concurrently.
type Runner struct {
	deps     Deps
	settings Settings
	now      func() time.Time
	cycles   int
}

// New validates deps and returns a runner.
func New(deps Deps, settings Settings) (*Runner, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("bot: source required")
	case deps.Engine == nil:
		return nil, errors.New("bot: signal engine required")
	case deps.Guard == nil:
		return nil, errors.New("bot: risk guard required")
	case deps.Ledger == nil:
		return nil, errors.New("bot: ledger required")
	case deps.Executor == nil:
		return nil, errors.New("bot: executor required")
	}
	if settings.OrderNotional <= 0 {
		return nil, fmt.Errorf("bot: order notional must be positive, got %.2f", settings.OrderNotional)
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = time.Minute
	}
	if settings.Name == "" {
		settings.Name = "futuresbot"
	}
	return &Runner{deps: deps, settings: settings, now: time.Now}, nil
}

// Run polls until ctx is cancelled. Cycle errors are logged and alerted, never fatal.
// Sources that need a background loop (the ticker stream) are started here.
func (r *Runner) Run(ctx context.Context) error {
	log := r.deps.Log
	if bg, ok := exchange.Unwrap(r.deps.Source).(exchange.Runner); ok {
		go func() {
			if err := bg.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("source", r.deps.Source.Name()).Msg("source stopped")
			}
		}()
	}

	details := fmt.Sprintf("source=%s sink=%s interval=%s", r.deps.Source.Name(), r.deps.Executor.SinkName(), r.settings.PollInterval)
	r.alert(ctx, notify.StatusMessage(r.settings.Name, "STARTED", details, r.now()))
	log.Info().Str("source", r.deps.Source.Name()).Str("sink", r.deps.Executor.SinkName()).
		Dur("interval", r.settings.PollInterval).Msg("bot started")

	ticker := time.NewTicker(r.settings.PollInterval)
	defer ticker.Stop()
	for {
		r.runLogged(ctx)
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.alert(stopCtx, notify.StatusMessage(r.settings.Name, "STOPPED", "", r.now()))
			cancel()
			log.Info().Msg("bot stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	cycle, err := r.RunOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.deps.Log.Error().Err(err).Msg("cycle failed")
		r.alert(ctx, notify.ErrorMessage("bot cycle", err, r.now()))
		return
	}
	r.deps.Log.Info().
		Int("fetched", cycle.Fetched).
		Int("rejected", cycle.Rejected).
		Int("buy", len(cycle.Buy)).
		Int("sell", len(cycle.Sell)).
		Int("exits", len(cycle.Exits)).
		Int("opened", len(cycle.Opened)).
		Int("closed", len(cycle.Closed)).
		Float64("equity", cycle.Stats.TotalValue).
		Msg("cycle complete")
}

// RunOnce executes a single fetch / evaluate / trade / persist cycle.
func (r *Runner) RunOnce(ctx context.Context) (Cycle, error) {
	log := r.deps.Log
	r.cycles++
	cycle := Cycle{At: r.now(), Skipped: map[string]string{}}

	rows, err := r.deps.Source.Tickers(ctx)
	if err != nil {
		return cycle, fmt.Errorf("fetch tickers from %s: %w", r.deps.Source.Name(), err)
	}
	cycle.Fetched = len(rows)

	res := r.deps.Engine.EvaluateTickers(rows)
	cycle.Rejected = len(res.Rejected)
	cycle.Buy, cycle.Sell = res.Buy, res.Sell
	for _, pe := range res.Rejected {
		metrics.ParseErrorsTotal.Inc()
		log.Warn().Err(pe).Str("sym", pe.Symbol).Msg("skipping ticker row")
	}
	metrics.SignalsTotal.WithLabelValues(string(signal.Buy)).Add(float64(len(res.Buy)))
	metrics.SignalsTotal.WithLabelValues(string(signal.Sell)).Add(float64(len(res.Sell)))
	r.recordSignals(res)

	r.applyExits(ctx, rows, &cycle)
	r.applySells(ctx, res.Sell, &cycle)

	stats := r.deps.Ledger.Stats()
	if r.deps.Guard.DrawdownBreached(stats.CurrentDrawdown / 100) {
		cycle.Halted = true
		log.Warn().Float64("drawdown_pct", stats.CurrentDrawdown).Msg("drawdown limit breached, entries halted")
	} else {
		r.applyBuys(ctx, res.Buy, &cycle)
	}

	cycle.Stats = r.deps.Ledger.Stats()
	publishStats(cycle.Stats)

	if r.deps.Store != nil {
		if err := r.deps.Store.Save(r.deps.Ledger.State()); err != nil {
			return cycle, fmt.Errorf("save portfolio: %w", err)
		}
	}

	if msg, ok := notify.SignalsMessage(res.Buy, res.Sell); ok {
		r.alert(ctx, msg)
	}
	if r.settings.SummaryEvery > 0 && r.cycles%r.settings.SummaryEvery == 0 {
		r.alert(ctx, notify.PortfolioMessage(cycle.Stats, r.deps.Ledger.PositionSummary()))
	}
	return cycle, nil
}

// applyExits marks every open position from this batch and closes those the guard flags.
func (r *Runner) applyExits(ctx context.Context, rows []signal.Ticker, cycle *Cycle) {
	marks := make(map[string]float64, len(rows))
	for _, row := range rows {
		snap, err := signal.ParseTicker(row)
		if err != nil {
			continue
		}
		marks[snap.Symbol] = snap.LastPrice.InexactFloat64()
	}

	for _, pos := range r.deps.Ledger.Positions() {
		mark, ok := marks[pos.Symbol]
		if !ok {
			continue
		}
		updated, err := r.deps.Ledger.UpdatePosition(pos.Symbol, mark)
		if err != nil || updated == nil {
			continue
		}
		reason, err := r.deps.Guard.ShouldExit(updated.EntryPrice, mark, updated.Side)
		if err != nil {
			r.deps.Log.Warn().Err(err).Str("sym", pos.Symbol).Msg("exit check failed")
			continue
		}
		if reason == risk.ExitNone {
			continue
		}
		trade, err := r.close(ctx, *updated, mark, string(reason))
		if err != nil {
			r.deps.Log.Error().Err(err).Str("sym", pos.Symbol).Str("reason", string(reason)).Msg("exit order failed")
			r.alert(ctx, notify.ErrorMessage("exit "+pos.Symbol, err, r.now()))
			continue
		}
		metrics.ExitsTotal.WithLabelValues(string(reason)).Inc()
		cycle.Exits = append(cycle.Exits, Exit{Reason: reason, Entry: updated.EntryPrice, Trade: trade})
		r.alert(ctx, notify.ExitMessage(reason, trade, updated.EntryPrice))
	}
}

// applySells closes an open LONG on a SELL signal. Shorts are never opened from signals.
func (r *Runner) applySells(ctx context.Context, sells []signal.Signal, cycle *Cycle) {
	for _, s := range sells {
		pos, ok := r.deps.Ledger.Position(s.Symbol)
		if !ok || pos.Side != risk.Long {
			continue
		}
		trade, err := r.close(ctx, pos, s.LastPrice.InexactFloat64(), reasonSellSignal)
		if err != nil {
			r.deps.Log.Error().Err(err).Str("sym", s.Symbol).Msg("sell signal close failed")
			r.alert(ctx, notify.ErrorMessage("close "+s.Symbol, err, r.now()))
			continue
		}
		cycle.Closed = append(cycle.Closed, trade)
		r.alert(ctx, notify.TradeMessage(trade))
	}
}

// applyBuys opens a LONG of OrderNotional for each BUY signal on a flat symbol that did not exit this cycle.
func (r *Runner) applyBuys(ctx context.Context, buys []signal.Signal, cycle *Cycle) {
	limits := r.deps.Guard.Limits()
	notional := r.settings.OrderNotional
	open := len(r.deps.Ledger.Positions())
	exited := make(map[string]bool, len(cycle.Exits))
	for _, e := range cycle.Exits {
		exited[e.Trade.Symbol] = true
	}
	for _, s := range buys {
		if _, ok := r.deps.Ledger.Position(s.Symbol); ok {
			cycle.Skipped[s.Symbol] = "position open"
			continue
		}
		if exited[s.Symbol] {
			cycle.Skipped[s.Symbol] = "exited this cycle"
			continue
		}
		if r.settings.MaxOpenPositions > 0 && open >= r.settings.MaxOpenPositions {
			cycle.Skipped[s.Symbol] = "max open positions"
			continue
		}
		if !limits.Allow(notional) {
			cycle.Skipped[s.Symbol] = "notional above per-trade cap"
			continue
		}
		if notional > r.deps.Ledger.Balance() {
			cycle.Skipped[s.Symbol] = "insufficient balance"
			continue
		}
		price := s.LastPrice.InexactFloat64()
		order := execution.Order{Symbol: s.Symbol, Side: execution.Buy, Qty: notional / price, Price: price, Reason: reasonBuySignal}
		trade, err := r.execute(ctx, order)
		if err != nil {
			r.deps.Log.Error().Err(err).Str("sym", s.Symbol).Msg("entry order failed")
			r.alert(ctx, notify.ErrorMessage("open "+s.Symbol, err, r.now()))
			continue
		}
		open++
		cycle.Opened = append(cycle.Opened, trade)
		r.alert(ctx, notify.TradeMessage(trade))
	}
	for sym, why := range cycle.Skipped {
		r.deps.Log.Debug().Str("sym", sym).Str("why", why).Msg("buy signal skipped")
	}
}

func (r *Runner) close(ctx context.Context, pos portfolio.Position, price float64, reason string) (portfolio.Trade, error) {
	return r.execute(ctx, execution.Order{Symbol: pos.Symbol, Side: pos.EntrySide().Opposite(), Qty: pos.Quantity, Price: price, Reason: reason})
}

// execute routes an order, books the fill and journals the resulting trade.
func (r *Runner) execute(ctx context.Context, order execution.Order) (portfolio.Trade, error) {
	fill, err := r.deps.Executor.Submit(ctx, order)
	if err != nil {
		return portfolio.Trade{}, err
	}
	if _, err := r.deps.Ledger.AddTrade(portfolio.TradeFromFill(fill)); err != nil {
		return portfolio.Trade{}, fmt.Errorf("book %s fill %s: %w", fill.Symbol, fill.OrderID, err)
	}
	trade, _ := r.deps.Ledger.LastTrade()
	if r.deps.Trades != nil {
		if err := r.deps.Trades.Record(trade); err != nil {
			r.deps.Log.Warn().Err(err).Msg("trade journal write failed")
		}
	}
	return trade, nil
}

func (r *Runner) recordSignals(res signal.Result) {
	if r.deps.Signals == nil {
		return
	}
	for _, batch := range [][]signal.Signal{res.Buy, res.Sell} {
		if err := journal.RecordAll(r.deps.Signals, batch); err != nil {
			r.deps.Log.Warn().Err(err).Msg("signal journal write failed")
			return
		}
	}
}

func (r *Runner) alert(ctx context.Context, msg notify.Message) {
	if err := r.deps.Notifier.Send(ctx, msg); err != nil {
		r.deps.Log.Warn().Err(err).Str("title", msg.Title).Msg("alert not delivered")
	}
}

func publishStats(st portfolio.Stats) {
	metrics.Equity.Set(st.TotalValue)
	metrics.UnrealizedPnL.Set(st.UnrealizedPnL)
	metrics.RealizedPnL.Set(st.RealizedPnL)
	metrics.OpenPositions.Set(float64(st.PositionsCount))
	metrics.DrawdownPct.Set(st.CurrentDrawdown)
}
