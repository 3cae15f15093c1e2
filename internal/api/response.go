package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/escrow-hub/internal/escrow"
)

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	if cid := CorrelationIDFromContext(r.Context()); cid != "" {
		w.Header().Set(CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	writeJSON(w, r, status, errorResponse{
		Error:         code,
		CorrelationID: CorrelationIDFromContext(r.Context()),
	})
}

// writeEngineError maps the engine's typed failures to stable JSON error
// codes. A TransferFailedError is the fatal tier: the whole transaction was
// aborted, so it surfaces as a gateway-side failure rather than a client
// error.
func writeEngineError(w http.ResponseWriter, r *http.Request, l *slog.Logger, err error) {
	var tfe *escrow.TransferFailedError
	if errors.As(err, &tfe) {
		l.Error("native transfer failed, transaction aborted",
			"cid", CorrelationIDFromContext(r.Context()),
			"listing_id", tfe.ListingID,
			"vendor", string(tfe.Vendor),
			"amount", tfe.Amount,
			"error", tfe.Err,
		)
		writeError(w, r, http.StatusBadGateway, "transfer_failed")
		return
	}

	switch {
	case errors.Is(err, escrow.ErrListingNotFound):
		writeError(w, r, http.StatusNotFound, "listing_not_found")
	case errors.Is(err, escrow.ErrOrderNotFound):
		writeError(w, r, http.StatusNotFound, "order_not_found")
	case errors.Is(err, escrow.ErrUnauthorised):
		writeError(w, r, http.StatusForbidden, "unauthorised")
	case errors.Is(err, escrow.ErrNotAVendor):
		writeError(w, r, http.StatusForbidden, "not_a_vendor")
	case errors.Is(err, escrow.ErrVendorAlreadyExists):
		writeError(w, r, http.StatusConflict, "vendor_already_exists")
	case errors.Is(err, escrow.ErrListingLimitReached):
		writeError(w, r, http.StatusConflict, "listing_limit_reached")
	case errors.Is(err, escrow.ErrOrderFinalised):
		writeError(w, r, http.StatusConflict, "order_finalised")
	case errors.Is(err, escrow.ErrOrderCancelled):
		writeError(w, r, http.StatusConflict, "order_cancelled")
	case errors.Is(err, escrow.ErrAmountUnavailable):
		writeError(w, r, http.StatusUnprocessableEntity, "amount_unavailable")
	case errors.Is(err, escrow.ErrInsufficientFunds):
		writeError(w, r, http.StatusUnprocessableEntity, "insufficient_funds")
	default:
		l.Error("internal error",
			"cid", CorrelationIDFromContext(r.Context()),
			"error", err,
		)
		writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}
