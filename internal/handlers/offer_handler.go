package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tradematch/backend/internal/models"
	"github.com/tradematch/backend/internal/services"
)

// OfferDistributor abstracts the distribution lifecycle operations the
// handler drives.
type OfferDistributor interface {
	DistributeJob(ctx context.Context, jobID uuid.UUID) ([]*models.Offer, error)
	ListJobOffers(ctx context.Context, jobID uuid.UUID) ([]*models.Offer, error)
	ListVendorOffers(ctx context.Context, vendorID uuid.UUID) ([]*models.Offer, error)
	AcceptOffer(ctx context.Context, jobID, vendorID uuid.UUID) (*services.AcceptResult, error)
	DeclineOffer(ctx context.Context, jobID, vendorID uuid.UUID, reason string) (*models.Offer, error)
	RefundOffer(ctx context.Context, offerID uuid.UUID, reason string, overridePence *int64) (*models.Offer, error)
}

// OfferHandler serves the distribution lifecycle endpoints.
type OfferHandler struct {
	Distributor OfferDistributor
	Logger      *slog.Logger
}

// --- POST /v1/jobs/{id}/distribute ---

func (h *OfferHandler) DistributeJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	offers, err := h.Distributor.DistributeJob(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, h.Logger, "distribute job", err)
		return
	}
	if offers == nil {
		offers = []*models.Offer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

// --- GET /v1/jobs/{id}/offers ---

func (h *OfferHandler) ListJobOffers(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	offers, err := h.Distributor.ListJobOffers(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, h.Logger, "list job offers", err)
		return
	}
	if offers == nil {
		offers = []*models.Offer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

// --- GET /v1/vendors/{id}/offers ---

func (h *OfferHandler) ListVendorOffers(w http.ResponseWriter, r *http.Request) {
	vendorID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vendor id")
		return
	}
	offers, err := h.Distributor.ListVendorOffers(r.Context(), vendorID)
	if err != nil {
		writeDomainError(w, h.Logger, "list vendor offers", err)
		return
	}
	if offers == nil {
		offers = []*models.Offer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

// --- POST /v1/jobs/{jobID}/offers/{vendorID}/accept ---

func (h *OfferHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	jobID, vendorID, ok := offerPathIDs(w, r)
	if !ok {
		return
	}
	result, err := h.Distributor.AcceptOffer(r.Context(), jobID, vendorID)
	if err != nil {
		writeDomainError(w, h.Logger, "accept offer", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- POST /v1/jobs/{jobID}/offers/{vendorID}/decline ---

type declineOfferRequest struct {
	Reason string `json:"reason"`
}

func (h *OfferHandler) DeclineOffer(w http.ResponseWriter, r *http.Request) {
	jobID, vendorID, ok := offerPathIDs(w, r)
	if !ok {
		return
	}
	var req declineOfferRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	offer, err := h.Distributor.DeclineOffer(r.Context(), jobID, vendorID, req.Reason)
	if err != nil {
		writeDomainError(w, h.Logger, "decline offer", err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// --- POST /v1/offers/{id}/refund ---

type refundOfferRequest struct {
	Reason      string `json:"reason"`
	AmountPence *int64 `json:"amount_pence"`
}

func (h *OfferHandler) RefundOffer(w http.ResponseWriter, r *http.Request) {
	offerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offer id")
		return
	}
	var req refundOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	offer, err := h.Distributor.RefundOffer(r.Context(), offerID, req.Reason, req.AmountPence)
	if err != nil {
		writeDomainError(w, h.Logger, "refund offer", err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// offerPathIDs parses the {jobID} and {vendorID} path segments.
func offerPathIDs(w http.ResponseWriter, r *http.Request) (jobID, vendorID uuid.UUID, ok bool) {
	jobID, err := uuid.Parse(r.PathValue("jobID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, uuid.Nil, false
	}
	vendorID, err = uuid.Parse(r.PathValue("vendorID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vendor id")
		return uuid.Nil, uuid.Nil, false
	}
	return jobID, vendorID, true
}
