package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tradematch/backend/internal/ledger"
)

// LedgerHandler serves the vendor credit endpoints.
type LedgerHandler struct {
	Ledger ledger.Service
	Logger *slog.Logger
}

// --- POST /v1/vendors/{id}/credits ---

type grantCreditRequest struct {
	AmountPence int64      `json:"amount_pence"`
	ExpiresAt   *time.Time `json:"expires_at"`
	PaymentRef  *string    `json:"payment_ref"`
}

// GrantCredit issues a new credit lot, typically after an external payment.
func (h *LedgerHandler) GrantCredit(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorPathID(w, r)
	if !ok {
		return
	}
	var req grantCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	lot, err := h.Ledger.IssueLot(r.Context(), vendorID, req.AmountPence, req.ExpiresAt, req.PaymentRef)
	if err != nil {
		writeDomainError(w, h.Logger, "grant credit", err)
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}

// --- POST /v1/vendors/{id}/credits/consume ---

type consumeCreditRequest struct {
	AmountPence int64  `json:"amount_pence"`
	Purpose     string `json:"purpose"`
}

func (h *LedgerHandler) ConsumeCredit(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorPathID(w, r)
	if !ok {
		return
	}
	var req consumeCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Purpose == "" {
		req.Purpose = "credit_usage"
	}
	result, err := h.Ledger.ConsumeCredit(r.Context(), vendorID, req.AmountPence, req.Purpose)
	if err != nil {
		writeDomainError(w, h.Logger, "consume credit", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- POST /v1/vendors/{id}/charge ---

type chargeVendorRequest struct {
	AmountPence int64   `json:"amount_pence"`
	OfferID     *string `json:"offer_id"`
	Reason      string  `json:"reason"`
}

// ChargeVendor takes a direct operator charge against the vendor balance.
func (h *LedgerHandler) ChargeVendor(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorPathID(w, r)
	if !ok {
		return
	}
	var req chargeVendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var offerID *uuid.UUID
	if req.OfferID != nil {
		id, err := uuid.Parse(*req.OfferID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid offer_id")
			return
		}
		offerID = &id
	}
	if req.Reason == "" {
		req.Reason = "manual_adjustment"
	}
	newBalance, err := h.Ledger.ChargeVendor(r.Context(), vendorID, offerID, req.AmountPence, req.Reason)
	if err != nil {
		writeDomainError(w, h.Logger, "charge vendor", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"balance_pence": newBalance})
}

// --- GET /v1/vendors/{id}/ledger ---

func (h *LedgerHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorPathID(w, r)
	if !ok {
		return
	}
	entries, err := h.Ledger.Entries(r.Context(), vendorID)
	if err != nil {
		writeDomainError(w, h.Logger, "list ledger entries", err)
		return
	}
	balance, err := h.Ledger.Balance(r.Context(), vendorID)
	if err != nil {
		writeDomainError(w, h.Logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance_pence": balance,
		"entries":       entries,
	})
}

// --- GET /v1/vendors/{id}/ledger/reconcile ---

func (h *LedgerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorPathID(w, r)
	if !ok {
		return
	}
	report, err := h.Ledger.Reconcile(r.Context(), vendorID)
	if err != nil {
		writeDomainError(w, h.Logger, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func vendorPathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vendor id")
		return uuid.Nil, false
	}
	return id, true
}
