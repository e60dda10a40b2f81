// Package notify announces market lifecycle outcomes (creations,
// settlements, cancellations) to chat channels. Announcements are fan-out:
// every configured sender gets every allowed event, and one failing sender
// never blocks the others.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Sender is one announcement channel.
type Sender interface {
	// Send delivers an announcement with a title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "discord".
	Name() string
}

// Notifier dispatches announcements to its senders, filtered by event type.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only event
// types listed in events pass the filter; an empty list allows everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers the announcement if its event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[event] {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// dispatch sends to every sender, collecting failures into one error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "announcement not delivered",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
