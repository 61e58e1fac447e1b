// Command signals evaluates one ticker batch and writes the breakout lists as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"futuresbot-go/internal/config"
	"futuresbot-go/internal/exchange"
	"futuresbot-go/internal/metrics"
	"futuresbot-go/internal/report"
	"futuresbot-go/internal/signal"
	"futuresbot-go/internal/util"
)

type output struct {
	Buy  []signal.Signal `json:"buy"`
	Sell []signal.Signal `json:"sell"`
}

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	outPath := flag.String("out", "data/signals.json", "where to write the buy/sell lists")
	spikes := flag.Float64("spikes", 0, "also list symbols whose quote volume exceeds this (e.g. 1e8)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := util.NewLogger("info", "json")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	src, err := exchange.NewSource(cfg.Exchange, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build source")
	}
	if bg, ok := exchange.Unwrap(src).(exchange.Runner); ok {
		// the stream needs a moment to fill its cache
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		go func() { _ = bg.Run(ctx) }()
		waitForRows(ctx, src)
	}
	engine, err := signal.NewEngine(cfg.Signal.ChangeThresholdPct, cfg.Signal.VolumeThreshold)
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Exchange.TimeoutMs)*time.Millisecond+time.Second)
	defer cancel()
	rows, err := src.Tickers(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("fetch tickers")
	}

	res := engine.EvaluateTickers(rows)
	for _, pe := range res.Rejected {
		metrics.ParseErrorsTotal.Inc()
		log.Warn().Err(pe).Str("sym", pe.Symbol).Msg("skipping ticker row")
	}
	log.Info().Int("rows", len(rows)).Int("buy", len(res.Buy)).Int("sell", len(res.Sell)).
		Int("no_signal", res.NoSignal()).Msg("evaluated tickers")

	report.Signals(os.Stdout, res.Buy, res.Sell)
	if *spikes > 0 {
		var snaps []signal.MarketSnapshot
		for _, row := range rows {
			if snap, err := signal.ParseTicker(row); err == nil {
				snaps = append(snaps, snap)
			}
		}
		fmt.Println()
		report.VolumeSpikes(os.Stdout, signal.VolumeSpikes(snaps, decimal.NewFromFloat(*spikes)))
	}

	if err := writeJSON(*outPath, output{Buy: res.Buy, Sell: res.Sell}); err != nil {
		log.Fatal().Err(err).Msg("write signals")
	}
	log.Info().Str("path", *outPath).Msg("signals written")
}

func waitForRows(ctx context.Context, src exchange.Source) {
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		if rows, err := src.Tickers(ctx); err == nil && len(rows) > 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
