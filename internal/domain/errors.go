package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrAlreadyEntered    = errors.New("already entered")
	ErrMarketLocked      = errors.New("market locked")
	ErrMarketClosed      = errors.New("market already settled or cancelled")
	ErrTransferFailed    = errors.New("transfer failed")
	ErrPartialSettlement = errors.New("partial settlement")
	ErrStorage           = errors.New("storage unavailable")
	ErrLockHeld          = errors.New("lock already held")
	ErrRateLimited       = errors.New("rate limited")
)

// Fault is the error type returned by ledger operations. Every failure must
// tell the caller whether any funds moved: callers relay that to users
// verbatim, and reconciliation tooling keys off it. FundsMoved faults carry
// the external transaction reference when one exists.
type Fault struct {
	Err        error  // sentinel category, matched with errors.Is
	Reason     string // human-readable detail
	FundsMoved bool
	TxRef      string
}

func (f *Fault) Error() string {
	if f.Reason == "" {
		return f.Err.Error()
	}
	return fmt.Sprintf("%s: %s", f.Err.Error(), f.Reason)
}

func (f *Fault) Unwrap() error { return f.Err }

// NewFault builds a Fault in the given category with no funds moved.
func NewFault(sentinel error, format string, args ...any) *Fault {
	return &Fault{Err: sentinel, Reason: fmt.Sprintf(format, args...)}
}

// FundsMoved reports whether the error indicates that real funds moved
// before the failure. An unknown error type is conservatively treated as
// "no funds moved" only when it is not a Fault; callers that dispatched a
// transfer must construct Faults themselves.
func FundsMoved(err error) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.FundsMoved
	}
	return false
}
