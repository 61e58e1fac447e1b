// Package notify delivers operator alerts (trades, exits, errors, status) to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Message is a formatted alert.
type Message struct {
	Title string
	Body  string
}

// Notifier fans a message out to every sender. A nil *Notifier is a valid no-op.
type Notifier struct {
	senders []Sender
	log     zerolog.Logger
}

// New returns a notifier for senders, or nil when there are none.
func New(log zerolog.Logger, senders ...Sender) *Notifier {
	var live []Sender
	for _, s := range senders {
		if s != nil {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return &Notifier{senders: live, log: log.With().Str("component", "notifier").Logger()}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

// Send delivers msg to every sender; one failure does not stop the rest.
func (n *Notifier) Send(ctx context.Context, msg Message) error {
	if !n.Enabled() {
		return nil
	}
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, msg.Title, msg.Body); err != nil {
			n.log.Error().Err(err).Str("sender", s.Name()).Str("title", msg.Title).Msg("alert delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.log.Debug().Str("sender", s.Name()).Str("title", msg.Title).Msg("alert sent")
	}
	return errors.Join(errs...)
}
