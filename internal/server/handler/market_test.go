package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osmowager/wagerbot/internal/domain"
	"github.com/osmowager/wagerbot/internal/ledger"
)

type stubLedger struct {
	market     domain.Market
	entry      domain.Entry
	settlement ledger.SettlementResult
	cancel     ledger.CancellationResult
	err        error
	lastOption int
	lastCreate ledger.CreateMarketRequest
}

func (s *stubLedger) CreateMarket(ctx context.Context, req ledger.CreateMarketRequest) (domain.Market, error) {
	s.lastCreate = req
	return s.market, s.err
}

func (s *stubLedger) PlaceEntry(ctx context.Context, marketID int64, principalRef, displayName string, optionIndex int) (domain.Entry, error) {
	s.lastOption = optionIndex
	return s.entry, s.err
}

func (s *stubLedger) Settle(ctx context.Context, marketID int64, winningOption int, requestedBy, requestedByName string) (ledger.SettlementResult, error) {
	s.lastOption = winningOption
	return s.settlement, s.err
}

func (s *stubLedger) Cancel(ctx context.Context, marketID int64, requestedBy, requestedByName string) (ledger.CancellationResult, error) {
	return s.cancel, s.err
}

func (s *stubLedger) GetMarket(ctx context.Context, id int64) (domain.Market, error) {
	return s.market, s.err
}

func (s *stubLedger) ListActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Market{s.market}, nil
}

type stubLimiter struct {
	allow bool
	err   error
	key   string
}

func (l *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.key = key
	return l.allow, l.err
}

func newMarketHandler(eng Ledger, limiter domain.RateLimiter) *MarketHandler {
	return NewMarketHandler(eng, limiter, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func doRequest(t *testing.T, h http.HandlerFunc, method, pattern, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(method+" "+pattern, h)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestErrStatus_Mapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.NewFault(domain.ErrValidation, "bad"), http.StatusBadRequest},
		{domain.NewFault(domain.ErrNotFound, "missing"), http.StatusNotFound},
		{domain.NewFault(domain.ErrPermissionDenied, "no"), http.StatusForbidden},
		{domain.NewFault(domain.ErrAlreadyEntered, "dup"), http.StatusConflict},
		{domain.NewFault(domain.ErrMarketClosed, "closed"), http.StatusConflict},
		{domain.NewFault(domain.ErrMarketLocked, "locked"), http.StatusLocked},
		{domain.NewFault(domain.ErrRateLimited, "slow down"), http.StatusTooManyRequests},
		{domain.NewFault(domain.ErrTransferFailed, "daemon"), http.StatusBadGateway},
		{domain.NewFault(domain.ErrStorage, "disk"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := errStatus(tc.err); got != tc.want {
			t.Errorf("errStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWriteError_CarriesFundsMovedAndTxRef(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, &domain.Fault{
		Err:        domain.ErrAlreadyEntered,
		Reason:     "duplicate wager prevented",
		FundsMoved: true,
		TxRef:      "TX77",
	})

	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.FundsMoved {
		t.Error("funds_moved not set")
	}
	if body.TxRef != "TX77" {
		t.Errorf("tx_ref = %q", body.TxRef)
	}
	if rr.Code != http.StatusConflict {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestCreateMarket_ConvertsAmountAndRateLimits(t *testing.T) {
	eng := &stubLedger{market: domain.Market{ID: 1}}
	lim := &stubLimiter{allow: true}
	h := newMarketHandler(eng, lim)

	rr := doRequest(t, h.CreateMarket, "POST", "/api/markets", "/api/markets",
		`{"question":"Who wins?","options":["A","B"],"creator_ref":"42","wager_amount":"1.5","token":"osmo","lock_in":"2h"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	if !eng.lastCreate.WagerAmount.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("wager = %s", eng.lastCreate.WagerAmount)
	}
	if lim.key != "create:42" {
		t.Errorf("limiter key = %q", lim.key)
	}
}

func TestCreateMarket_RateLimited(t *testing.T) {
	h := newMarketHandler(&stubLedger{}, &stubLimiter{allow: false})

	rr := doRequest(t, h.CreateMarket, "POST", "/api/markets", "/api/markets",
		`{"question":"Q","options":["A","B"],"creator_ref":"42","wager_amount":"1","token":"osmo"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCreateMarket_BadAmount(t *testing.T) {
	h := newMarketHandler(&stubLedger{}, nil)

	rr := doRequest(t, h.CreateMarket, "POST", "/api/markets", "/api/markets",
		`{"question":"Q","options":["A","B"],"creator_ref":"42","wager_amount":"lots","token":"osmo"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestPlaceEntry_OneBasedOptionOnTheWire(t *testing.T) {
	eng := &stubLedger{}
	h := newMarketHandler(eng, nil)

	rr := doRequest(t, h.PlaceEntry, "POST", "/api/markets/{id}/entries", "/api/markets/7/entries",
		`{"principal_ref":"2","display_name":"Bob","option":2}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}
	if eng.lastOption != 1 {
		t.Errorf("engine got option index %d, want 1 for wire option 2", eng.lastOption)
	}

	rr = doRequest(t, h.PlaceEntry, "POST", "/api/markets/{id}/entries", "/api/markets/7/entries",
		`{"principal_ref":"2","display_name":"Bob","option":0}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("wire option 0 accepted: %d", rr.Code)
	}
}

func TestGetMarket_BadID(t *testing.T) {
	h := newMarketHandler(&stubLedger{}, nil)

	rr := doRequest(t, h.GetMarket, "GET", "/api/markets/{id}", "/api/markets/banana", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSettle_PartialReportsRecordWith200(t *testing.T) {
	eng := &stubLedger{
		settlement: ledger.SettlementResult{
			Market: domain.Market{ID: 7, State: domain.StateSettled},
			Record: domain.SettlementRecord{
				TxRef:  "BATCH1",
				Failed: []domain.PayoutFailure{{PrincipalRef: "2", Reason: "sequence mismatch"}},
			},
		},
		err: &domain.Fault{
			Err:        domain.ErrPartialSettlement,
			Reason:     "1 of 2 payouts failed",
			FundsMoved: true,
			TxRef:      "BATCH1",
		},
	}
	h := newMarketHandler(eng, nil)

	rr := doRequest(t, h.Settle, "POST", "/api/markets/{id}/settle", "/api/markets/7/settle",
		`{"winning_option":1,"requested_by":"1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body)
	}

	var body struct {
		Partial bool `json:"partial"`
		Record  struct {
			Failed []struct {
				Reason string `json:"reason"`
			} `json:"failed"`
		} `json:"record"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Partial || len(body.Record.Failed) != 1 {
		t.Errorf("body = %s", rr.Body)
	}
	if eng.lastOption != 0 {
		t.Errorf("engine got winning option %d, want 0 for wire option 1", eng.lastOption)
	}
}

func TestSettle_DeniedMapsTo403(t *testing.T) {
	eng := &stubLedger{err: domain.NewFault(domain.ErrPermissionDenied, "only the market creator or an admin may do this")}
	h := newMarketHandler(eng, nil)

	rr := doRequest(t, h.Settle, "POST", "/api/markets/{id}/settle", "/api/markets/7/settle",
		`{"winning_option":1,"requested_by":"555"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rr.Code)
	}
}
