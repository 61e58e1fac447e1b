package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"futuresbot-go/internal/config"
	"futuresbot-go/internal/portfolio"
	"futuresbot-go/internal/report"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	flag.Parse()
	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== Futures Bot Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit signal thresholds")
		fmt.Println("3) Edit bankroll and risk knobs")
		fmt.Println("4) Show saved portfolio")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch bot")
		fmt.Println("7) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editSignal(reader, cfg)
		case "3":
			editRisk(reader, cfg)
		case "4":
			showPortfolio(cfg)
		case "5":
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "not saved, config invalid:\n%v\n", err)
			} else if err := config.Save(*configPath, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchBot(reader, *configPath)
		case "7":
			reloaded, err := config.Load(*configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Provider: %s (symbols: %s, quote: %s)\n", cfg.Exchange.Provider, strings.Join(cfg.Exchange.Symbols, ", "), cfg.Exchange.QuoteAsset)
	fmt.Printf("Poll interval: %s\n", time.Duration(cfg.Exchange.PollIntervalMs)*time.Millisecond)
	fmt.Printf("Change threshold: %.2f%% | volume threshold: $%.0f\n", cfg.Signal.ChangeThresholdPct, cfg.Signal.VolumeThreshold)
	fmt.Printf("Stop loss: %.2f%% | take profit: %.2f%%\n", cfg.Risk.StopLossPct*100, cfg.Risk.TakeProfitPct*100)
	fmt.Printf("Per-trade notional cap: $%.2f | max open positions: %d\n", cfg.Risk.MaxNotionalPerTrade, cfg.Risk.MaxOpenPositions)
	fmt.Printf("Kill switch drawdown: %.2f%%\n", cfg.Risk.MaxDrawdownPct*100)
	fmt.Printf("Initial balance: $%.2f | order notional: $%.2f\n", cfg.Portfolio.InitialBalance, cfg.Portfolio.OrderNotionalUSD)
	fmt.Printf("Execution: %s (fee %.1f bps, slippage %.1f bps)\n", cfg.Execution.Mode, cfg.Execution.FeeBps, cfg.Execution.SlippageBps)
	fmt.Printf("Telegram alerts: %t\n", cfg.Telegram.Enabled)
}

func editSignal(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Signal Thresholds ---")
	cfg.Signal.ChangeThresholdPct = promptFloat(reader, "24h change threshold (%)", cfg.Signal.ChangeThresholdPct)
	cfg.Signal.VolumeThreshold = promptFloat(reader, "Quote volume threshold (USD)", cfg.Signal.VolumeThreshold)
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Risk / Bankroll ---")
	cfg.Portfolio.InitialBalance = promptFloat(reader, "Initial balance", cfg.Portfolio.InitialBalance)
	cfg.Portfolio.OrderNotionalUSD = promptFloat(reader, "Order notional (USD)", cfg.Portfolio.OrderNotionalUSD)
	cfg.Risk.StopLossPct = promptPercent(reader, "Stop loss (%)", cfg.Risk.StopLossPct)
	cfg.Risk.TakeProfitPct = promptPercent(reader, "Take profit (%)", cfg.Risk.TakeProfitPct)
	cfg.Risk.MaxNotionalPerTrade = promptFloat(reader, "Max notional per trade (USD, 0 = off)", cfg.Risk.MaxNotionalPerTrade)
	cfg.Risk.MaxOpenPositions = int(promptFloat(reader, "Max open positions (0 = off)", float64(cfg.Risk.MaxOpenPositions)))
	cfg.Risk.MaxDrawdownPct = promptPercent(reader, "Kill switch drawdown (%)", cfg.Risk.MaxDrawdownPct)
}

func showPortfolio(cfg *config.Config) {
	state, err := portfolio.NewFileStore(cfg.Portfolio.StatePath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "no portfolio: %v\n", err)
		return
	}
	ledger := portfolio.NewLedger(cfg.Portfolio.InitialBalance)
	if err := ledger.Restore(state); err != nil {
		fmt.Fprintf(os.Stderr, "portfolio unreadable: %v\n", err)
		return
	}
	fmt.Println()
	report.Positions(os.Stdout, ledger.PositionSummary())
	report.Stats(os.Stdout, ledger.Stats())
}

func launchBot(reader *bufio.Reader, configPath string) {
	fmt.Println("Launching futures bot (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/futuresbot", "-config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start bot: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the bot and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}
