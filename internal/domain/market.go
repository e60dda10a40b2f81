package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketState is the stored lifecycle state of a market. A "locked" market is
// not a stored state: it is derived from an open market whose lock time has
// passed (see Market.IsLocked).
type MarketState string

const (
	StateOpen      MarketState = "open"
	StateSettled   MarketState = "settled"
	StateCancelled MarketState = "cancelled"
)

// Market is a single betting question with a fixed wager amount and an
// ordered set of options. Participants wager into a custodial escrow pool
// that is paid out proportionally on settlement or refunded on cancellation.
type Market struct {
	ID       int64    `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`

	// CreatorRef identifies the creating principal. It is usually a numeric
	// chat user id but web-created markets store a free-text name; a creator
	// ref that does not parse as a positive integer leaves the market under
	// admin-only control.
	CreatorRef string `json:"creator"`

	WagerAmount decimal.Decimal `json:"wager_amount"`
	Token       string          `json:"token"`

	// LockTime is the instant after which new entries are rejected. A nil
	// LockTime means the market stays open until the creator closes it.
	LockTime *time.Time `json:"lock_time,omitempty"`

	// Participants is append-only until settlement or cancellation; insertion
	// order is arrival order and no principal appears twice.
	Participants []Entry `json:"participants"`

	State         MarketState         `json:"state"`
	WinningOption *int                `json:"winning_option,omitempty"`
	Settlement    *SettlementRecord   `json:"settlement,omitempty"`
	Cancellation  *CancellationRecord `json:"cancellation,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Entry is one participant's admitted wager. Entries are created exactly once
// per principal per market and never mutated afterwards; payouts and refunds
// reference them.
type Entry struct {
	PrincipalRef string          `json:"principal"`
	DisplayName  string          `json:"display_name"`
	Amount       decimal.Decimal `json:"amount"`
	OptionIndex  int             `json:"option"`
	Token        string          `json:"token"`
	TransferRef  string          `json:"tx_ref"`
	PlacedAt     time.Time       `json:"placed_at"`
}

// IsLocked reports whether the market is open but past its lock time, i.e.
// read-only for new entries while still settleable by the creator.
func (m *Market) IsLocked(now time.Time) bool {
	return m.State == StateOpen && m.LockTime != nil && !now.Before(*m.LockTime)
}

// IsOpen reports whether the market can still accept entries at the given
// instant.
func (m *Market) IsOpen(now time.Time) bool {
	return m.State == StateOpen && !m.IsLocked(now)
}

// HasEntry reports whether the principal already holds an entry in this
// market.
func (m *Market) HasEntry(principalRef string) bool {
	for _, e := range m.Participants {
		if e.PrincipalRef == principalRef {
			return true
		}
	}
	return false
}

// TotalPool returns the escrowed pool for the market: the fixed wager amount
// multiplied by the number of participants.
func (m *Market) TotalPool() decimal.Decimal {
	return m.WagerAmount.Mul(decimal.NewFromInt(int64(len(m.Participants))))
}
