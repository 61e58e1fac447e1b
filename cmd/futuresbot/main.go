package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"futuresbot-go/internal/bot"
	"futuresbot-go/internal/config"
	"futuresbot-go/internal/metrics"
	"futuresbot-go/internal/report"
	"futuresbot-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info", "json")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat).With().Str("app", cfg.App.Name).Logger()

	assembly, err := bot.Build(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build bot")
	}
	defer assembly.Close()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *once {
		cycle, err := assembly.Runner.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("cycle failed")
			return
		}
		report.Signals(os.Stdout, cycle.Buy, cycle.Sell)
		report.Positions(os.Stdout, assembly.Deps.Ledger.PositionSummary())
		report.Stats(os.Stdout, cycle.Stats)
		return
	}

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}
	log.Info().Str("mode", cfg.Execution.Mode).Str("provider", cfg.Exchange.Provider).Msg("futures bot started")

	if err := assembly.Runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("bot stopped")
	}
	log.Info().Msg("shutting down")
}
