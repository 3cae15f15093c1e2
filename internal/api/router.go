package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/escrow-hub/internal/escrow"
	"github.com/example/escrow-hub/pkg/audit"
)

// Escrow is the slice of the engine the HTTP surface consumes.
type Escrow interface {
	Config() escrow.Config
	CreateVendor(ctx context.Context, caller escrow.AccountID) error
	CreateListing(ctx context.Context, caller escrow.AccountID) error
	DepositIntoListing(ctx context.Context, id uint32, caller escrow.AccountID, transferred uint64) error
	CreateOrder(ctx context.Context, listingID uint32, amount uint64, caller escrow.AccountID) error
	SubmitPaymentVerification(ctx context.Context, orderID uint64, evidence string, caller escrow.AccountID) error
	WithdrawFromListing(ctx context.Context, id uint32, amount uint64, caller escrow.AccountID) error
	ListListings(page uint32, size uint8) []escrow.Listing
	ListOrders(page uint64, size uint8) []escrow.Order
}

// Auditor receives one payload per handled request.
type Auditor interface {
	Append(payload string) *audit.Entry
}

// Dependencies carries everything the router needs. Logger defaults to
// slog.Default; Auditor is optional.
type Dependencies struct {
	Logger  *slog.Logger
	Escrow  Escrow
	Auditor Auditor
}

// NewRouter builds the HTTP surface over the escrow engine. Caller identity
// comes from the X-Escrow-Account header set by the fronting authenticating
// gateway.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(CorrelationID)
	r.Use(CallerIdentity)
	r.Use(RequestLogger(deps.Logger))
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/config", handleConfig(deps))

		r.Post("/vendors", handleCreateVendor(deps))

		r.Route("/listings", func(r chi.Router) {
			r.Get("/", handleListListings(deps))
			r.Post("/", handleCreateListing(deps))
			r.Post("/{id}/deposits", handleDeposit(deps))
			r.Post("/{id}/withdrawals", handleWithdraw(deps))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", handleListOrders(deps))
			r.Post("/", handleCreateOrder(deps))
			r.Put("/{id}/verification", handleSubmitVerification(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r
}
