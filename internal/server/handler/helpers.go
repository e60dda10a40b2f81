package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/osmowager/wagerbot/internal/domain"
)

// errorBody is the JSON shape of every error response. FundsMoved tells the
// caller whether escrow money actually moved before the failure, which decides
// whether a retry is safe.
type errorBody struct {
	Error      string `json:"error"`
	FundsMoved bool   `json:"funds_moved"`
	TxRef      string `json:"tx_ref,omitempty"`
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error","funds_moved":false}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError maps a ledger error to an HTTP status and writes the JSON error
// body, carrying the funds-moved flag and any transaction reference through.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{
		Error:      err.Error(),
		FundsMoved: domain.FundsMoved(err),
	}
	var f *domain.Fault
	if errors.As(err, &f) {
		body.TxRef = f.TxRef
	}
	writeJSON(w, errStatus(err), body)
}

// errStatus maps domain sentinel errors to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyEntered),
		errors.Is(err, domain.ErrMarketClosed),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMarketLocked):
		return http.StatusLocked
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// pathID extracts a positive integer path parameter using Go 1.22+ built-in
// routing (http.Request.PathValue).
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, domain.NewFault(domain.ErrValidation, "invalid %s %q", name, raw)
	}
	return id, nil
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewFault(domain.ErrValidation, "invalid request body: %v", err)
	}
	return nil
}
