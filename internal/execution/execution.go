// Package execution handles order lifecycle and interaction with venues.
package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"futuresbot-go/internal/metrics"

	"github.com/rs/zerolog"
)

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy indicates a long order.
	Buy Side = "BUY"
	// Sell indicates a short order.
	Sell Side = "SELL"
)

// Opposite returns the side that unwinds s.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ErrInvalidOrder is returned for orders the executor refuses to route.
var ErrInvalidOrder = errors.New("invalid order")

// Order represents a placement request the executor can process.
type Order struct {
	Symbol string
	Side   Side
	Qty    float64
	Price  float64 // reference price; sinks fill at market
	Reason string
}

// Fill is an executed order as reported by a sink.
type Fill struct {
	OrderID string    `json:"order_id"`
	Symbol  string    `json:"symbol"`
	Side    Side      `json:"side"`
	Qty     float64   `json:"qty"`
	Price   float64   `json:"price"`
	Fee     float64   `json:"fee"`
	Ts      time.Time `json:"ts"`
}

// Sink places orders somewhere: a simulator or a venue.
type Sink interface {
	Execute(ctx context.Context, order Order) (Fill, error)
	Name() string
}

// Validate checks the fields every sink relies on.
func (o Order) Validate() error {
	if strings.TrimSpace(o.Symbol) == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidOrder)
	}
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, o.Side)
	}
	if o.Qty <= 0 {
		return fmt.Errorf("%w: qty %.8f", ErrInvalidOrder, o.Qty)
	}
	if o.Price < 0 {
		return fmt.Errorf("%w: price %.8f", ErrInvalidOrder, o.Price)
	}
	return nil
}

// Executor validates, counts and logs orders before handing them to a sink.
type Executor struct {
	sink Sink
	log  zerolog.Logger
}

// NewExecutor wraps a sink with logging.
func NewExecutor(sink Sink, log zerolog.Logger) *Executor {
	return &Executor{sink: sink, log: log}
}

// SinkName reports which sink orders go to.
func (executor *Executor) SinkName() string { return executor.sink.Name() }

// Submit routes an order and returns the resulting fill.
func (executor *Executor) Submit(ctx context.Context, order Order) (Fill, error) {
	if err := order.Validate(); err != nil {
		return Fill{}, err
	}
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	executor.log.Info().
		Str("sink", executor.sink.Name()).
		Str("sym", order.Symbol).
		Str("side", string(order.Side)).
		Float64("qty", order.Qty).
		Float64("px", order.Price).
		Str("reason", order.Reason).
		Msg("submit order")

	fill, err := executor.sink.Execute(ctx, order)
	if err != nil {
		metrics.OrderErrorsTotal.WithLabelValues(order.Symbol).Inc()
		executor.log.Error().Err(err).Str("sym", order.Symbol).Msg("order failed")
		return Fill{}, fmt.Errorf("%s execute %s: %w", executor.sink.Name(), order.Symbol, err)
	}
	executor.log.Info().
		Str("order_id", fill.OrderID).
		Str("sym", fill.Symbol).
		Float64("qty", fill.Qty).
		Float64("px", fill.Price).
		Float64("fee", fill.Fee).
		Msg("order filled")
	return fill, nil
}
