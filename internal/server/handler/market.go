package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osmowager/wagerbot/internal/domain"
	"github.com/osmowager/wagerbot/internal/ledger"
)

// Ledger defines the engine operations the market handler requires. It is
// declared locally so the handler package does not depend on the concrete
// engine beyond its request/result types.
type Ledger interface {
	CreateMarket(ctx context.Context, req ledger.CreateMarketRequest) (domain.Market, error)
	PlaceEntry(ctx context.Context, marketID int64, principalRef, displayName string, optionIndex int) (domain.Entry, error)
	Settle(ctx context.Context, marketID int64, winningOption int, requestedBy, requestedByName string) (ledger.SettlementResult, error)
	Cancel(ctx context.Context, marketID int64, requestedBy, requestedByName string) (ledger.CancellationResult, error)
	GetMarket(ctx context.Context, id int64) (domain.Market, error)
	ListActiveMarkets(ctx context.Context) ([]domain.Market, error)
}

// MarketHandler serves market lifecycle HTTP endpoints.
type MarketHandler struct {
	engine  Ledger
	limiter domain.RateLimiter // optional; nil disables creation throttling
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. limiter may be nil.
func NewMarketHandler(engine Ledger, limiter domain.RateLimiter, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		engine:  engine,
		limiter: limiter,
		logger:  logger,
	}
}

type createMarketRequest struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	CreatorRef  string   `json:"creator_ref"`
	WagerAmount string   `json:"wager_amount"`
	Token       string   `json:"token"`
	LockIn      string   `json:"lock_in"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if h.limiter != nil && req.CreatorRef != "" {
		ok, err := h.limiter.Allow(r.Context(), "create:"+req.CreatorRef, 5, time.Minute)
		if err != nil {
			// Limiter outage must not take market creation down with it.
			h.logger.WarnContext(r.Context(), "rate limiter unavailable",
				slog.String("error", err.Error()),
			)
		} else if !ok {
			writeError(w, domain.NewFault(domain.ErrRateLimited, "too many markets created, slow down"))
			return
		}
	}

	amount, err := decimal.NewFromString(req.WagerAmount)
	if err != nil {
		writeError(w, domain.NewFault(domain.ErrValidation, "invalid wager_amount %q", req.WagerAmount))
		return
	}

	market, err := h.engine.CreateMarket(r.Context(), ledger.CreateMarketRequest{
		Question:    req.Question,
		Options:     req.Options,
		CreatorRef:  req.CreatorRef,
		WagerAmount: amount,
		Token:       req.Token,
		LockIn:      req.LockIn,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// ListMarkets returns all open markets.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.engine.ListActiveMarkets(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": markets,
		"total":   len(markets),
	})
}

// GetMarket returns a single market by id.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	market, err := h.engine.GetMarket(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

type placeEntryRequest struct {
	PrincipalRef string `json:"principal_ref"`
	DisplayName  string `json:"display_name"`
	// Option is 1-based, matching how options are presented to users.
	Option int `json:"option"`
}

// PlaceEntry wagers on an open market.
// POST /api/markets/{id}/entries
func (h *MarketHandler) PlaceEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req placeEntryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Option < 1 {
		writeError(w, domain.NewFault(domain.ErrValidation, "option must be 1 or greater"))
		return
	}

	entry, err := h.engine.PlaceEntry(r.Context(), id, req.PrincipalRef, req.DisplayName, req.Option-1)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

type settleRequest struct {
	// WinningOption is 1-based on the wire.
	WinningOption int    `json:"winning_option"`
	RequestedBy   string `json:"requested_by"`
	RequestedName string `json:"requested_by_name"`
}

// Settle declares the winning option and pays out from escrow.
// POST /api/markets/{id}/settle
func (h *MarketHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req settleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.WinningOption < 1 {
		writeError(w, domain.NewFault(domain.ErrValidation, "winning_option must be 1 or greater"))
		return
	}

	result, err := h.engine.Settle(r.Context(), id, req.WinningOption-1, req.RequestedBy, req.RequestedName)
	if err != nil {
		// Partial settlement still closed the market and moved funds for
		// some winners; report the record rather than a bare failure.
		if errors.Is(err, domain.ErrPartialSettlement) {
			writeJSON(w, http.StatusOK, map[string]any{
				"market":  result.Market,
				"record":  result.Record,
				"partial": true,
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market":  result.Market,
		"record":  result.Record,
		"partial": false,
	})
}

type cancelRequest struct {
	RequestedBy   string `json:"requested_by"`
	RequestedName string `json:"requested_by_name"`
}

// Cancel voids a market and refunds all participants.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req cancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.engine.Cancel(r.Context(), id, req.RequestedBy, req.RequestedName)
	if err != nil {
		if errors.Is(err, domain.ErrPartialSettlement) {
			writeJSON(w, http.StatusOK, map[string]any{
				"market":  result.Market,
				"record":  result.Record,
				"partial": true,
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market":  result.Market,
		"record":  result.Record,
		"partial": false,
	})
}
