package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Credential is the opaque secret material the transfer service needs to
// move funds out of an account. The ledger never inspects it.
type Credential string

// Recipient is one (destination, amount, token) tuple inside a batch
// transfer.
type Recipient struct {
	Address string
	Amount  decimal.Decimal
	Token   string
}

// TransferResult describes a completed single transfer.
type TransferResult struct {
	TxRef   string
	Height  int64
	GasUsed string
	FeePaid string
}

// RecipientFailure is a per-recipient failure reported by the transfer
// service for a batch that otherwise committed.
type RecipientFailure struct {
	Address string
	Reason  string
}

// BatchResult describes a committed batch transfer. Failed lists recipients
// the service could not pay even though the batch as a whole went through;
// an empty Failed slice means every recipient was paid in the single
// transaction referenced by TxRef.
type BatchResult struct {
	TxRef  string
	Height int64
	Failed []RecipientFailure
}

// Balance is an account balance as reported by the transfer service, in
// display units.
type Balance struct {
	Denom     string
	Amount    decimal.Decimal
	Formatted string
}

// TransferService is the external funds mover. Implementations must treat a
// returned error as "no funds moved" for Transfer and BatchTransfer: a batch
// that moved any funds at all must return a BatchResult (with per-recipient
// failures listed) rather than an error.
type TransferService interface {
	Transfer(ctx context.Context, from Credential, to string, amount decimal.Decimal, token, memo string) (TransferResult, error)
	BatchTransfer(ctx context.Context, from Credential, recipients []Recipient, memo string) (BatchResult, error)
	Balance(ctx context.Context, address, token string) (Balance, error)
	HealthCheck(ctx context.Context) error
}

// WalletRecord is a principal's custodial wallet as held by the external
// wallet directory. The ledger consumes it; it never creates or mutates it.
type WalletRecord struct {
	Address    string     `json:"address"`
	Credential Credential `json:"mnemonic"`
}

// WalletDirectory resolves a principal to their custodial wallet. Resolve
// returns ErrNotFound when the principal has no wallet on file.
type WalletDirectory interface {
	Resolve(ctx context.Context, principalRef string) (WalletRecord, error)
}
