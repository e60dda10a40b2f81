package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutResult is one successfully paid (or refunded) recipient inside a
// batch transfer.
type PayoutResult struct {
	PrincipalRef string          `json:"principal"`
	DisplayName  string          `json:"display_name"`
	Address      string          `json:"address"`
	Amount       decimal.Decimal `json:"amount"`
	Token        string          `json:"token"`
	TxRef        string          `json:"tx_ref"`
}

// PayoutFailure is one recipient that could not be paid, either because the
// payout could not be prepared (no wallet on file) or because the transfer
// service reported a per-recipient failure. Failures are recorded verbatim
// for manual reconciliation and are never retried automatically.
type PayoutFailure struct {
	PrincipalRef string `json:"principal"`
	DisplayName  string `json:"display_name"`
	Reason       string `json:"reason"`
}

// SettlementRecord is the immutable audit payload written when a market is
// settled. It is persisted inside the market record.
type SettlementRecord struct {
	RecordID      string          `json:"record_id"`
	WinningOption int             `json:"winning_option"`
	TotalPool     decimal.Decimal `json:"total_pool"`
	Fee           decimal.Decimal `json:"fee"`
	FeePercent    decimal.Decimal `json:"fee_percent"`
	PayoutPool    decimal.Decimal `json:"payout_pool"`
	PerWinner     decimal.Decimal `json:"per_winner"`
	NoWinners     bool            `json:"no_winners"`
	Paid          []PayoutResult  `json:"paid,omitempty"`
	Failed        []PayoutFailure `json:"failed,omitempty"`
	TxRef         string          `json:"tx_ref,omitempty"`
	SettledBy     string          `json:"settled_by"`
	SettledAt     time.Time       `json:"settled_at"`
}

// CancellationRecord is the immutable audit payload written when a market is
// cancelled and its participants refunded.
type CancellationRecord struct {
	RecordID    string          `json:"record_id"`
	Refunded    []PayoutResult  `json:"refunded,omitempty"`
	Failed      []PayoutFailure `json:"failed,omitempty"`
	TxRef       string          `json:"tx_ref,omitempty"`
	CancelledBy string          `json:"cancelled_by"`
	CancelledAt time.Time       `json:"cancelled_at"`
}
