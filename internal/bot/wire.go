package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"futuresbot-go/internal/config"
	"futuresbot-go/internal/exchange"
	"futuresbot-go/internal/execution"
	"futuresbot-go/internal/journal"
	"futuresbot-go/internal/notify"
	"futuresbot-go/internal/portfolio"
	"futuresbot-go/internal/risk"
	"futuresbot-go/internal/signal"
)

// Assembly is a runner plus the resources the caller must close.
type Assembly struct {
	Runner  *Runner
	Deps    Deps
	closers []func() error
}

// Close releases journals.
func (a *Assembly) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Build wires every collaborator from cfg. A saved portfolio at Portfolio.StatePath is restored.
func Build(cfg *config.Config, log zerolog.Logger) (*Assembly, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	src, err := exchange.NewSource(cfg.Exchange, log)
	if err != nil {
		return nil, err
	}
	engine, err := signal.NewEngine(cfg.Signal.ChangeThresholdPct, cfg.Signal.VolumeThreshold)
	if err != nil {
		return nil, err
	}
	guard, err := risk.NewGuard(risk.Limits{
		StopLossPct:         cfg.Risk.StopLossPct,
		TakeProfitPct:       cfg.Risk.TakeProfitPct,
		MaxNotionalPerTrade: cfg.Risk.MaxNotionalPerTrade,
		MaxDrawdownPct:      cfg.Risk.MaxDrawdownPct,
	})
	if err != nil {
		return nil, err
	}

	ledger := portfolio.NewLedger(cfg.Portfolio.InitialBalance)
	var store *portfolio.FileStore
	if cfg.Portfolio.StatePath != "" {
		store = portfolio.NewFileStore(cfg.Portfolio.StatePath)
		state, err := store.Load()
		switch {
		case errors.Is(err, portfolio.ErrNoState):
			log.Info().Str("path", store.Path()).Float64("balance", cfg.Portfolio.InitialBalance).Msg("starting fresh portfolio")
		case err != nil:
			return nil, err
		default:
			if err := ledger.Restore(state); err != nil {
				return nil, fmt.Errorf("restore %s: %w", store.Path(), err)
			}
			log.Info().Str("path", store.Path()).Int("positions", len(state.Positions)).
				Int("trades", len(state.TradeHistory)).Msg("restored portfolio")
		}
	}

	a := &Assembly{}
	openJournal := func(path string) (*journal.JSONLRecorder, error) {
		if path == "" {
			return nil, nil
		}
		rec, err := journal.NewJSONLRecorder(path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rec.Close)
		return rec, nil
	}
	signals, err := openJournal(cfg.Portfolio.SignalsPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	trades, err := openJournal(cfg.Portfolio.TradesPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	var sink execution.Sink
	if strings.EqualFold(cfg.Execution.Mode, "live") {
		sink = execution.NewBinanceSink(cfg.Exchange.APIKey, cfg.Exchange.APISecret, "", cfg.Exchange.Testnet,
			execution.WithBinanceFeeBps(cfg.Execution.FeeBps))
	} else {
		sink = execution.NewPaperSink(cfg.Execution.FeeBps, cfg.Execution.SlippageBps)
	}

	var senders []notify.Sender
	if cfg.Telegram.Enabled {
		senders = append(senders, notify.NewTelegramSender(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}

	a.Deps = Deps{
		Source:   src,
		Engine:   engine,
		Guard:    guard,
		Ledger:   ledger,
		Executor: execution.NewExecutor(sink, log),
		Store:    store,
		Signals:  signals,
		Trades:   trades,
		Notifier: notify.New(log, senders...),
		Log:      log,
	}
	a.Runner, err = New(a.Deps, Settings{
		Name:             cfg.App.Name,
		OrderNotional:    cfg.Portfolio.OrderNotionalUSD,
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
		PollInterval:     time.Duration(cfg.Exchange.PollIntervalMs) * time.Millisecond,
		SummaryEvery:     cfg.Portfolio.SummaryEvery,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}
