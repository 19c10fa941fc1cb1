// Package router assembles the HTTP surface: route registration plus the
// CORS wrapper.
package router

import (
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/tradematch/backend/internal/handlers"
	"github.com/tradematch/backend/internal/ledger"
	"github.com/tradematch/backend/internal/repository"
	"github.com/tradematch/backend/internal/services"
)

// New returns an http.Handler serving the /v1 marketplace API.
func New(
	jobRepo *repository.JobRepo,
	vendorRepo *repository.VendorRepo,
	scoreRepo *repository.ScoreRepo,
	distributor *services.Distributor,
	ledgerSvc ledger.Service,
	allowedOrigins []string,
	logger *slog.Logger,
) http.Handler {
	jh := &handlers.JobHandler{
		Jobs:    jobRepo,
		Vendors: vendorRepo,
		Scores:  scoreRepo,
		Logger:  logger,
	}
	oh := &handlers.OfferHandler{
		Distributor: distributor,
		Logger:      logger,
	}
	lh := &handlers.LedgerHandler{
		Ledger: ledgerSvc,
		Logger: logger,
	}

	mux := http.NewServeMux()

	// Jobs.
	mux.HandleFunc("POST /v1/jobs", jh.CreateJob)
	mux.HandleFunc("GET /v1/jobs/{id}", jh.GetJob)
	mux.HandleFunc("GET /v1/jobs/{id}/score", jh.GetJobScore)
	mux.HandleFunc("POST /v1/jobs/{id}/close", jh.CloseJob)

	// Distribution lifecycle.
	mux.HandleFunc("POST /v1/jobs/{id}/distribute", oh.DistributeJob)
	mux.HandleFunc("GET /v1/jobs/{id}/offers", oh.ListJobOffers)
	mux.HandleFunc("POST /v1/jobs/{jobID}/offers/{vendorID}/accept", oh.AcceptOffer)
	mux.HandleFunc("POST /v1/jobs/{jobID}/offers/{vendorID}/decline", oh.DeclineOffer)
	mux.HandleFunc("POST /v1/offers/{id}/refund", oh.RefundOffer)

	// Vendors and their credit ledger.
	mux.HandleFunc("POST /v1/vendors", jh.CreateVendor)
	mux.HandleFunc("GET /v1/vendors/{id}", jh.GetVendor)
	mux.HandleFunc("GET /v1/vendors/{id}/offers", oh.ListVendorOffers)
	mux.HandleFunc("POST /v1/vendors/{id}/credits", lh.GrantCredit)
	mux.HandleFunc("POST /v1/vendors/{id}/credits/consume", lh.ConsumeCredit)
	mux.HandleFunc("POST /v1/vendors/{id}/charge", lh.ChargeVendor)
	mux.HandleFunc("GET /v1/vendors/{id}/ledger", lh.ListEntries)
	mux.HandleFunc("GET /v1/vendors/{id}/ledger/reconcile", lh.Reconcile)

	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(mux)
}
