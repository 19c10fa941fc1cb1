package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tradematch/backend/internal/ledger"
	"github.com/tradematch/backend/internal/models"
	"github.com/tradematch/backend/internal/repository"
	"github.com/tradematch/backend/internal/services"
)

// mockDistributor returns canned values and records the arguments it was
// called with.
type mockDistributor struct {
	offers []*models.Offer
	result *services.AcceptResult
	err    error

	gotJobID    uuid.UUID
	gotVendorID uuid.UUID
	gotOfferID  uuid.UUID
	gotReason   string
	gotOverride *int64
}

func (m *mockDistributor) DistributeJob(_ context.Context, jobID uuid.UUID) ([]*models.Offer, error) {
	m.gotJobID = jobID
	return m.offers, m.err
}

func (m *mockDistributor) ListJobOffers(_ context.Context, jobID uuid.UUID) ([]*models.Offer, error) {
	m.gotJobID = jobID
	return m.offers, m.err
}

func (m *mockDistributor) ListVendorOffers(_ context.Context, vendorID uuid.UUID) ([]*models.Offer, error) {
	m.gotVendorID = vendorID
	return m.offers, m.err
}

func (m *mockDistributor) AcceptOffer(_ context.Context, jobID, vendorID uuid.UUID) (*services.AcceptResult, error) {
	m.gotJobID, m.gotVendorID = jobID, vendorID
	return m.result, m.err
}

func (m *mockDistributor) DeclineOffer(_ context.Context, jobID, vendorID uuid.UUID, reason string) (*models.Offer, error) {
	m.gotJobID, m.gotVendorID, m.gotReason = jobID, vendorID, reason
	if m.err != nil {
		return nil, m.err
	}
	return &models.Offer{JobID: jobID, VendorID: vendorID, State: models.OfferStateDeclined}, nil
}

func (m *mockDistributor) RefundOffer(_ context.Context, offerID uuid.UUID, reason string, overridePence *int64) (*models.Offer, error) {
	m.gotOfferID, m.gotReason, m.gotOverride = offerID, reason, overridePence
	if m.err != nil {
		return nil, m.err
	}
	return &models.Offer{ID: offerID, State: models.OfferStateAccepted, Refunded: true}, nil
}

func newOfferHandler(m *mockDistributor) *OfferHandler {
	return &OfferHandler{Distributor: m, Logger: discardLogger()}
}

func acceptReq(jobID, vendorID string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/v1/jobs/x/offers/y/accept", nil)
	r.SetPathValue("jobID", jobID)
	r.SetPathValue("vendorID", vendorID)
	return r
}

// =====================================================================
// POST /v1/jobs/{id}/distribute
// =====================================================================

func TestDistributeJobHandler(t *testing.T) {
	jobID := uuid.New()
	m := &mockDistributor{offers: []*models.Offer{
		{ID: uuid.New(), JobID: jobID, Rank: 1, State: models.OfferStateOffered},
	}}
	h := newOfferHandler(m)

	rec := httptest.NewRecorder()
	h.DistributeJob(rec, pathReq(http.MethodPost, "/v1/jobs/x/distribute", jobID.String(), ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if m.gotJobID != jobID {
		t.Errorf("distributor called with %s, want %s", m.gotJobID, jobID)
	}
	var resp struct {
		Offers []*models.Offer `json:"offers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Offers) != 1 {
		t.Errorf("offers: got %d, want 1", len(resp.Offers))
	}
}

func TestDistributeJobHandler_NoVendors(t *testing.T) {
	// A nil offer slice still serialises as an empty array, not null.
	h := newOfferHandler(&mockDistributor{})

	rec := httptest.NewRecorder()
	h.DistributeJob(rec, pathReq(http.MethodPost, "/v1/jobs/x/distribute", uuid.New().String(), ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"offers":[]`) {
		t.Errorf("body %s should contain an empty offers array", rec.Body.String())
	}
}

// =====================================================================
// GET /v1/jobs/{id}/offers
// =====================================================================

func TestListJobOffersHandler(t *testing.T) {
	jobID := uuid.New()
	m := &mockDistributor{offers: []*models.Offer{
		{ID: uuid.New(), JobID: jobID, Rank: 1, State: models.OfferStateAccepted},
		{ID: uuid.New(), JobID: jobID, Rank: 2, State: models.OfferStateOffered},
	}}
	h := newOfferHandler(m)

	rec := httptest.NewRecorder()
	h.ListJobOffers(rec, pathReq(http.MethodGet, "/v1/jobs/x/offers", jobID.String(), ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if m.gotJobID != jobID {
		t.Errorf("distributor called with %s, want %s", m.gotJobID, jobID)
	}
	var resp struct {
		Offers []*models.Offer `json:"offers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Offers) != 2 {
		t.Errorf("offers: got %d, want 2", len(resp.Offers))
	}
}

// =====================================================================
// Domain error -> status mapping
// =====================================================================

func TestAcceptOffer_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", repository.ErrNotFound, http.StatusNotFound},
		{"insufficient funds", ledger.ErrInsufficientFunds, http.StatusPaymentRequired},
		{"already resolved", services.ErrOfferResolved, http.StatusConflict},
		{"job closed", services.ErrJobClosed, http.StatusConflict},
		{"expired", services.ErrOfferExpired, http.StatusGone},
		{"validation", services.ErrValidation, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newOfferHandler(&mockDistributor{err: tt.err})
			rec := httptest.NewRecorder()
			h.AcceptOffer(rec, acceptReq(uuid.New().String(), uuid.New().String()))
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAcceptOffer_Success(t *testing.T) {
	m := &mockDistributor{result: &services.AcceptResult{ChargedPence: 500, RemainingBalance: 1500}}
	h := newOfferHandler(m)

	rec := httptest.NewRecorder()
	h.AcceptOffer(rec, acceptReq(uuid.New().String(), uuid.New().String()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp services.AcceptResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ChargedPence != 500 || resp.RemainingBalance != 1500 {
		t.Errorf("got charged %d remaining %d", resp.ChargedPence, resp.RemainingBalance)
	}
}

func TestAcceptOffer_BadIDs(t *testing.T) {
	h := newOfferHandler(&mockDistributor{})

	rec := httptest.NewRecorder()
	h.AcceptOffer(rec, acceptReq("nope", uuid.New().String()))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad job id: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.AcceptOffer(rec, acceptReq(uuid.New().String(), "nope"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad vendor id: expected 400, got %d", rec.Code)
	}
}

// =====================================================================
// POST /v1/jobs/{jobID}/offers/{vendorID}/decline
// =====================================================================

func TestDeclineOfferHandler(t *testing.T) {
	m := &mockDistributor{}
	h := newOfferHandler(m)

	r := httptest.NewRequest(http.MethodPost, "/v1/jobs/x/offers/y/decline", strings.NewReader(`{"reason":"too far out"}`))
	r.SetPathValue("jobID", uuid.New().String())
	r.SetPathValue("vendorID", uuid.New().String())

	rec := httptest.NewRecorder()
	h.DeclineOffer(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if m.gotReason != "too far out" {
		t.Errorf("reason: got %q", m.gotReason)
	}
}

// =====================================================================
// POST /v1/offers/{id}/refund
// =====================================================================

func TestRefundOfferHandler(t *testing.T) {
	m := &mockDistributor{}
	h := newOfferHandler(m)
	offerID := uuid.New()

	body := `{"reason":"goodwill","amount_pence":100}`
	rec := httptest.NewRecorder()
	h.RefundOffer(rec, pathReq(http.MethodPost, "/v1/offers/x/refund", offerID.String(), body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if m.gotOfferID != offerID || m.gotReason != "goodwill" {
		t.Errorf("got offer %s reason %q", m.gotOfferID, m.gotReason)
	}
	if m.gotOverride == nil || *m.gotOverride != 100 {
		t.Errorf("override: got %v, want 100", m.gotOverride)
	}
}

func TestRefundOfferHandler_ValidationStatus(t *testing.T) {
	h := newOfferHandler(&mockDistributor{err: services.ErrValidation})

	body := `{"reason":"made_up"}`
	rec := httptest.NewRecorder()
	h.RefundOffer(rec, pathReq(http.MethodPost, "/v1/offers/x/refund", uuid.New().String(), body))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}
