package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type configResponse struct {
	Admin string `json:"admin"`
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type createOrderRequest struct {
	ListingID uint32 `json:"listing_id"`
	Amount    uint64 `json:"amount"`
}

type verificationRequest struct {
	Evidence string `json:"evidence"`
}

type listingResponse struct {
	ID              uint32 `json:"id"`
	Vendor          string `json:"vendor"`
	AvailableAmount uint64 `json:"available_amount"`
}

type orderResponse struct {
	ID                  uint64  `json:"id"`
	Buyer               string  `json:"buyer"`
	Vendor              string  `json:"vendor"`
	Amount              uint64  `json:"amount"`
	PaymentVerification *string `json:"payment_verification"`
	Status              string  `json:"status"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body")
		return false
	}
	return true
}

// pathID parses the {id} route parameter as an unsigned integer of the given
// bit width.
func pathID(w http.ResponseWriter, r *http.Request, bits int) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_id")
		return 0, false
	}
	return id, true
}

// pageParams reads page and size from the query string. Page defaults to 0
// and size to 10; size is capped at 255 by its wire width.
func pageParams(w http.ResponseWriter, r *http.Request, pageBits int) (page uint64, size uint8, ok bool) {
	q := r.URL.Query()

	size = 10
	if raw := q.Get("size"); raw != "" {
		s, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_size")
			return 0, 0, false
		}
		size = uint8(s)
	}

	if raw := q.Get("page"); raw != "" {
		p, err := strconv.ParseUint(raw, 10, pageBits)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_page")
			return 0, 0, false
		}
		page = p
	}

	return page, size, true
}

func handleConfig(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := deps.Escrow.Config()
		writeJSON(w, r, http.StatusOK, configResponse{Admin: string(cfg.Admin)})
	}
}

func handleCreateVendor(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		if err := deps.Escrow.CreateVendor(r.Context(), caller); err != nil {
			writeEngineError(w, r, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func handleCreateListing(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		if err := deps.Escrow.CreateListing(r.Context(), caller); err != nil {
			writeEngineError(w, r, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func handleListListings(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, size, ok := pageParams(w, r, 32)
		if !ok {
			return
		}

		listings := deps.Escrow.ListListings(uint32(page), size)
		out := make([]listingResponse, 0, len(listings))
		for _, l := range listings {
			out = append(out, listingResponse{
				ID:              l.ID,
				Vendor:          string(l.Vendor),
				AvailableAmount: l.AvailableAmount,
			})
		}
		writeJSON(w, r, http.StatusOK, out)
	}
}

func handleDeposit(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, 32)
		if !ok {
			return
		}
		var req amountRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Escrow.DepositIntoListing(r.Context(), uint32(id), caller, req.Amount); err != nil {
			writeEngineError(w, r, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleWithdraw(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, 32)
		if !ok {
			return
		}
		var req amountRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Escrow.WithdrawFromListing(r.Context(), uint32(id), req.Amount, caller); err != nil {
			writeEngineError(w, r, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleCreateOrder(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		var req createOrderRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Escrow.CreateOrder(r.Context(), req.ListingID, req.Amount, caller); err != nil {
			writeEngineError(w, r, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func handleListOrders(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, size, ok := pageParams(w, r, 64)
		if !ok {
			return
		}

		orders := deps.Escrow.ListOrders(page, size)
		out := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			out = append(out, orderResponse{
				ID:                  o.ID,
				Buyer:               string(o.Buyer),
				Vendor:              string(o.Vendor),
				Amount:              o.Amount,
				PaymentVerification: o.PaymentVerification,
				Status:              o.Status.String(),
			})
		}
		writeJSON(w, r, http.StatusOK, out)
	}
}

func handleSubmitVerification(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, 64)
		if !ok {
			return
		}
		var req verificationRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Escrow.SubmitPaymentVerification(r.Context(), id, req.Evidence, caller); err != nil {
			writeEngineError(w, r, deps.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
