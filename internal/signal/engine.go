package signal

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Reference thresholds.
const (
	DefaultChangeThresholdPct = 3.0
	DefaultVolumeThreshold    = 10_000_000
)

// ErrNegativeThreshold is returned when either threshold is below zero.
var ErrNegativeThreshold = errors.New("thresholds must be non-negative")

// Result is the outcome of classifying one raw batch.
type Result struct {
	Buy      []Signal
	Sell     []Signal
	Rejected []*ParseError
	// Evaluated counts rows that parsed and were classified.
	Evaluated int
}

// NoSignal reports how many valid rows produced neither direction.
func (r Result) NoSignal() int { return r.Evaluated - len(r.Buy) - len(r.Sell) }

// Engine classifies snapshots against fixed thresholds. Immutable and safe for concurrent use.
type Engine struct {
	change decimal.Decimal
	volume decimal.Decimal
	now    func() time.Time
}

// NewEngine builds an engine; changePct is in percent units (3.0 means 3%).
func NewEngine(changePct, volume float64) (*Engine, error) {
	if changePct < 0 || volume < 0 {
		return nil, ErrNegativeThreshold
	}
	return &Engine{
		change: decimal.NewFromFloat(changePct),
		volume: decimal.NewFromFloat(volume),
		now:    time.Now,
	}, nil
}

// Thresholds returns the bound change and volume bars.
func (e *Engine) Thresholds() (change, volume decimal.Decimal) { return e.change, e.volume }

// Evaluate splits snapshots into buy and sell signals.
func (e *Engine) Evaluate(snapshots []MarketSnapshot) (buy, sell []Signal) {
	buy, sell = classify(snapshots, e.change, e.volume, e.now())
	return buy, sell
}

// EvaluateTickers parses raw rows, skipping bad ones, then classifies the rest.
func (e *Engine) EvaluateTickers(tickers []Ticker) Result {
	snaps := make([]MarketSnapshot, 0, len(tickers))
	var rejected []*ParseError
	for _, t := range tickers {
		snap, err := ParseTicker(t)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				rejected = append(rejected, pe)
			} else {
				rejected = append(rejected, &ParseError{Symbol: t.Symbol, Err: err})
			}
			continue
		}
		snaps = append(snaps, snap)
	}
	buy, sell := e.Evaluate(snaps)
	return Result{Buy: buy, Sell: sell, Rejected: rejected, Evaluated: len(snaps)}
}

// Evaluate is the stateless form of Engine.Evaluate.
func Evaluate(snapshots []MarketSnapshot, changeThresholdPct, volumeThreshold decimal.Decimal) (buy, sell []Signal, err error) {
	if changeThresholdPct.IsNegative() || volumeThreshold.IsNegative() {
		return nil, nil, ErrNegativeThreshold
	}
	buy, sell = classify(snapshots, changeThresholdPct, volumeThreshold, time.Now())
	return buy, sell, nil
}

func classify(snapshots []MarketSnapshot, change, volume decimal.Decimal, ts time.Time) (buy, sell []Signal) {
	buy = make([]Signal, 0)
	sell = make([]Signal, 0)
	negChange := change.Neg()
	for _, s := range snapshots {
		if !s.QuoteVolume.GreaterThan(volume) {
			continue
		}
		switch {
		case s.PriceChangePercent.GreaterThan(change):
			buy = append(buy, newSignal(s, Buy, ts))
		case s.PriceChangePercent.LessThan(negChange):
			sell = append(sell, newSignal(s, Sell, ts))
		}
	}
	return buy, sell
}

func newSignal(s MarketSnapshot, dir Direction, ts time.Time) Signal {
	return Signal{
		Symbol:        s.Symbol,
		Direction:     dir,
		ChangePercent: s.PriceChangePercent,
		QuoteVolume:   s.QuoteVolume,
		LastPrice:     s.LastPrice,
		Ts:            ts,
	}
}

// VolumeSpikes returns snapshots whose quote volume exceeds minQuoteVolume, largest first.
func VolumeSpikes(snapshots []MarketSnapshot, minQuoteVolume decimal.Decimal) []MarketSnapshot {
	out := make([]MarketSnapshot, 0)
	for _, s := range snapshots {
		if s.QuoteVolume.GreaterThan(minQuoteVolume) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].QuoteVolume.GreaterThan(out[j].QuoteVolume)
	})
	return out
}
