package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tradematch/backend/internal/models"
)

// JobRepoForHandler is the subset of the job repository the handler needs.
type JobRepoForHandler interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// VendorRepoForHandler is the subset of the vendor repository the handler
// needs.
type VendorRepoForHandler interface {
	Create(ctx context.Context, v *models.Vendor) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
}

// ScoreGetter exposes a job's stored qualification score.
type ScoreGetter interface {
	Get(ctx context.Context, jobID uuid.UUID) (*models.QualificationScore, error)
}

// JobHandler serves job and vendor CRUD.
type JobHandler struct {
	Jobs    JobRepoForHandler
	Vendors VendorRepoForHandler
	Scores  ScoreGetter
	Logger  *slog.Logger
}

// --- POST /v1/jobs ---

type createJobRequest struct {
	RequesterID    string `json:"requester_id"`
	Category       string `json:"category"`
	Postcode       string `json:"postcode"`
	BudgetMinPence *int64 `json:"budget_min_pence"`
	BudgetMaxPence *int64 `json:"budget_max_pence"`
	Urgency        string `json:"urgency"`
	Description    string `json:"description"`
	PhotoCount     int    `json:"photo_count"`
}

func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	requesterID, err := uuid.Parse(req.RequesterID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid requester_id")
		return
	}
	if req.Category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	if req.BudgetMinPence != nil && req.BudgetMaxPence != nil && *req.BudgetMinPence > *req.BudgetMaxPence {
		writeError(w, http.StatusBadRequest, "budget_min_pence above budget_max_pence")
		return
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:             uuid.New(),
		RequesterID:    requesterID,
		Category:       req.Category,
		Postcode:       req.Postcode,
		BudgetMinPence: req.BudgetMinPence,
		BudgetMaxPence: req.BudgetMaxPence,
		Urgency:        req.Urgency,
		Description:    req.Description,
		PhotoCount:     req.PhotoCount,
		Status:         models.JobStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.Jobs.Create(r.Context(), job); err != nil {
		h.Logger.Error("create job", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// --- GET /v1/jobs/{id} ---

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := h.Jobs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.Logger, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- GET /v1/jobs/{id}/score ---

func (h *JobHandler) GetJobScore(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	score, err := h.Scores.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.Logger, "get job score", err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// --- POST /v1/jobs/{id}/close ---

func (h *JobHandler) CloseJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	if err := h.Jobs.UpdateStatus(r.Context(), id, models.JobStatusClosed); err != nil {
		writeDomainError(w, h.Logger, "close job", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.JobStatusClosed})
}

// --- POST /v1/vendors ---

type createVendorRequest struct {
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	Postcode         string   `json:"postcode"`
	Services         []string `json:"services"`
	MinBudgetPence   *int64   `json:"min_budget_pence"`
	MaxBudgetPence   *int64   `json:"max_budget_pence"`
	MinQualityScore  *int     `json:"min_quality_score"`
	ReputationScore  float64  `json:"reputation_score"`
	WinRate          float64  `json:"win_rate"`
	AvgRating        float64  `json:"avg_rating"`
	AvgResponseHours float64  `json:"avg_response_hours"`
}

func (h *JobHandler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	var req createVendorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	now := time.Now().UTC()
	vendor := &models.Vendor{
		ID:               uuid.New(),
		Name:             req.Name,
		Email:            req.Email,
		Postcode:         req.Postcode,
		Services:         req.Services,
		Active:           true,
		Verified:         false,
		MinBudgetPence:   req.MinBudgetPence,
		MaxBudgetPence:   req.MaxBudgetPence,
		MinQualityScore:  req.MinQualityScore,
		ReputationScore:  req.ReputationScore,
		WinRate:          req.WinRate,
		AvgRating:        req.AvgRating,
		AvgResponseHours: req.AvgResponseHours,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := h.Vendors.Create(r.Context(), vendor); err != nil {
		h.Logger.Error("create vendor", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create vendor")
		return
	}
	writeJSON(w, http.StatusCreated, vendor)
}

// --- GET /v1/vendors/{id} ---

func (h *JobHandler) GetVendor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vendor id")
		return
	}
	vendor, err := h.Vendors.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.Logger, "get vendor", err)
		return
	}
	writeJSON(w, http.StatusOK, vendor)
}
