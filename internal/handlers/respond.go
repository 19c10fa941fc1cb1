package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tradematch/backend/internal/ledger"
	"github.com/tradematch/backend/internal/repository"
	"github.com/tradematch/backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the domain sentinels onto HTTP statuses. Anything
// unrecognized is a 500 and gets logged; the sentinels are expected outcomes
// and are not.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient funds")
	case errors.Is(err, services.ErrOfferResolved):
		writeError(w, http.StatusConflict, "offer already resolved")
	case errors.Is(err, services.ErrJobClosed):
		writeError(w, http.StatusConflict, "job is not open")
	case errors.Is(err, services.ErrOfferExpired):
		writeError(w, http.StatusGone, "offer expired")
	case errors.Is(err, services.ErrValidation), errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
