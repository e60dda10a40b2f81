package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/osmowager/wagerbot/internal/domain"
)

// BalanceService resolves on-chain balances for principals and for the
// escrow account.
type BalanceService interface {
	GetBalance(ctx context.Context, principalRef, token string) (domain.Balance, error)
	EscrowBalance(ctx context.Context, token string) (domain.Balance, error)
}

// BalanceHandler serves balance lookup endpoints.
type BalanceHandler struct {
	balances BalanceService
	logger   *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler.
func NewBalanceHandler(balances BalanceService, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{balances: balances, logger: logger}
}

// GetBalance returns the balance of one principal's wallet.
// GET /api/balance/{principal}?token=osmo
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	principal := r.PathValue("principal")
	if principal == "" {
		writeError(w, domain.NewFault(domain.ErrValidation, "missing principal"))
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, domain.NewFault(domain.ErrValidation, "missing token query parameter"))
		return
	}

	balance, err := h.balances.GetBalance(r.Context(), principal, token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// EscrowBalance returns the escrow account's balance.
// GET /api/escrow/balance?token=osmo
func (h *BalanceHandler) EscrowBalance(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, domain.NewFault(domain.ErrValidation, "missing token query parameter"))
		return
	}

	balance, err := h.balances.EscrowBalance(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}
