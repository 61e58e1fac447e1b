package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperSink fills every order immediately at the reference price adjusted for slippage.
type PaperSink struct {
	mu          sync.Mutex
	feeBps      float64
	slippageBps float64
	now         func() time.Time
	fills       int
}

// PaperOption configures a PaperSink.
type PaperOption func(*PaperSink)

// WithPaperClock overrides the fill timestamp source.
func WithPaperClock(now func() time.Time) PaperOption {
	return func(p *PaperSink) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPaperSink builds a simulator charging feeBps on notional and moving the price by slippageBps against the taker.
func NewPaperSink(feeBps, slippageBps float64, opts ...PaperOption) *PaperSink {
	p := &PaperSink{feeBps: max(feeBps, 0), slippageBps: max(slippageBps, 0), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Sink.
func (p *PaperSink) Name() string { return "paper" }

// Execute implements Sink.
func (p *PaperSink) Execute(ctx context.Context, order Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if err := order.Validate(); err != nil {
		return Fill{}, err
	}
	if order.Price <= 0 {
		return Fill{}, ErrInvalidOrder
	}
	px := order.Price
	slip := p.slippageBps / 10_000
	if order.Side == Buy {
		px *= 1 + slip
	} else {
		px *= 1 - slip
	}
	fee := order.Qty * px * p.feeBps / 10_000

	p.mu.Lock()
	p.fills++
	ts := p.now()
	p.mu.Unlock()

	return Fill{
		OrderID: "PAPER-" + uuid.NewString(),
		Symbol:  order.Symbol,
		Side:    order.Side,
		Qty:     order.Qty,
		Price:   px,
		Fee:     fee,
		Ts:      ts,
	}, nil
}

// Fills reports how many orders the simulator has filled.
func (p *PaperSink) Fills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fills
}
