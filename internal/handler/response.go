package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"pharmapos-backend/internal/db"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/server/authctx"
)

type apiError struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
}

type apiResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Data    any       `json:"data"`
	Error   *apiError `json:"error,omitempty"`
}

func writeRawJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	if status >= 400 {
		writeRawJSON(w, status, apiResponse{
			Status:  "error",
			Message: "",
			Data:    payload,
			Error: &apiError{
				Code:   status,
				Status: http.StatusText(status),
			},
		})
		return
	}
	writeRawJSON(w, status, apiResponse{
		Status:  "ok",
		Message: "",
		Data:    payload,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeErrorData(w, status, message, nil)
}

func writeErrorData(w http.ResponseWriter, status int, message string, data any) {
	if status < 400 {
		status = http.StatusInternalServerError
	}
	writeRawJSON(w, status, apiResponse{
		Status:  "error",
		Message: message,
		Data:    data,
		Error: &apiError{
			Code:   status,
			Status: http.StatusText(status),
		},
	})
}

// writeDomainError maps ledger errors to a status code. Anything that is not
// a caller error is logged and answered with a generic 500.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		shortage  *domain.InsufficientStockError
		notFound  *domain.MedicineNotFoundError
		duplicate *domain.DuplicateRequestError
	)
	switch {
	case errors.As(err, &shortage):
		writeErrorData(w, http.StatusConflict, err.Error(), map[string]any{
			"medicineId": shortage.MedicineID,
			"available":  shortage.Available,
			"requested":  shortage.Requested,
		})
	case errors.As(err, &duplicate):
		writeError(w, http.StatusConflict, "duplicate request")
	case errors.As(err, &notFound),
		errors.Is(err, domain.ErrSaleNotFound),
		errors.Is(err, domain.ErrCreditSaleNotFound),
		errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyPaid),
		errors.Is(err, domain.ErrCreditPaymentsRecorded),
		errors.Is(err, domain.ErrMedicineExists):
		writeError(w, http.StatusConflict, err.Error())
	case domain.IsUserError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case db.IsLockTimeout(err), db.IsSerializationFailure(err):
		writeError(w, http.StatusServiceUnavailable, "ledger busy, retry the request")
	default:
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func currentUser(w http.ResponseWriter, r *http.Request) (*authctx.CurrentUser, bool) {
	u := authctx.FromContext(r.Context())
	if u == nil || u.BusinessID <= 0 {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return u, true
}

func pathID(w http.ResponseWriter, r *http.Request, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// maxQueryLimit bounds ?limit= on list endpoints. An endpoint whose default is
// larger (the movement export) is capped at its default instead.
const maxQueryLimit = 500

func queryLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return min(parsed, max(fallback, maxQueryLimit))
		}
	}
	return fallback
}
