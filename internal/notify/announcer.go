package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/osmowager/wagerbot/internal/domain"
)

// Announcer adapts ledger events into human-readable announcements. It is a
// domain.EventSink; delivery runs in its own goroutine so publishing never
// blocks a settlement.
type Announcer struct {
	notifier *Notifier
	logger   *slog.Logger
}

// NewAnnouncer creates an Announcer delivering through the given Notifier.
func NewAnnouncer(notifier *Notifier, logger *slog.Logger) *Announcer {
	return &Announcer{
		notifier: notifier,
		logger:   logger.With(slog.String("component", "announcer")),
	}
}

// Publish formats and delivers the event asynchronously.
func (a *Announcer) Publish(ctx context.Context, ev domain.Event) {
	title, message := formatEvent(ev)
	if title == "" {
		return
	}
	go func() {
		// Detached context: the triggering request may already be done.
		if err := a.notifier.Notify(context.Background(), ev.Type, title, message); err != nil {
			a.logger.Error("announcement failed",
				slog.String("event", ev.Type),
				slog.Int64("market_id", ev.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func formatEvent(ev domain.Event) (title, message string) {
	switch ev.Type {
	case "market_created":
		m, ok := ev.Payload.(domain.Market)
		if !ok {
			return "", ""
		}
		return fmt.Sprintf("New Bet #%d", m.ID),
			fmt.Sprintf("%s\nWager: %s %s per entry, %d options.",
				m.Question, m.WagerAmount.String(), m.Token, len(m.Options))

	case "entry_placed":
		e, ok := ev.Payload.(domain.Entry)
		if !ok {
			return "", ""
		}
		return fmt.Sprintf("Wager placed on Bet #%d", ev.MarketID),
			fmt.Sprintf("%s joined with %s %s.", e.DisplayName, e.Amount.String(), e.Token)

	case "market_settled":
		r, ok := ev.Payload.(domain.SettlementRecord)
		if !ok {
			return "", ""
		}
		if r.NoWinners && r.TotalPool.IsZero() {
			return fmt.Sprintf("Bet #%d closed", ev.MarketID), "No participants, nothing to pay out."
		}
		if r.NoWinners {
			return fmt.Sprintf("Bet #%d settled - no winners", ev.MarketID),
				fmt.Sprintf("Pool of %s stays with the house.", r.TotalPool.String())
		}
		msg := fmt.Sprintf("Pool %s, fee %s, %s to each of %d winners (tx %s).",
			r.TotalPool.String(), r.Fee.String(), r.PerWinner.StringFixed(6), len(r.Paid), r.TxRef)
		if len(r.Failed) > 0 {
			msg += fmt.Sprintf(" %d payouts failed and need manual follow-up.", len(r.Failed))
		}
		return fmt.Sprintf("Bet #%d settled", ev.MarketID), msg

	case "market_cancelled":
		r, ok := ev.Payload.(domain.CancellationRecord)
		if !ok {
			return "", ""
		}
		if len(r.Refunded) == 0 && len(r.Failed) == 0 {
			return fmt.Sprintf("Bet #%d cancelled", ev.MarketID), "No participants, nothing to refund."
		}
		msg := fmt.Sprintf("%d participants refunded (tx %s).", len(r.Refunded), r.TxRef)
		if len(r.Failed) > 0 {
			msg += fmt.Sprintf(" %d refunds failed and need manual follow-up.", len(r.Failed))
		}
		return fmt.Sprintf("Bet #%d cancelled", ev.MarketID), msg
	}
	return "", ""
}

// Compile-time interface check.
var _ domain.EventSink = (*Announcer)(nil)
