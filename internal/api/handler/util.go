package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kwamina/walletbridge/internal/api/middleware"
	"github.com/kwamina/walletbridge/internal/api/problem"
	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/repository"
	"github.com/kwamina/walletbridge/internal/service"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, false, errors.New("missing user in auth context")
	}

	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid user_id in auth context")
	}

	return actorID, middleware.UserRoleFromContext(r.Context()) == "admin", nil
}

// mapServiceError translates the orchestration error taxonomy into RFC 7807
// responses. Anything unmatched falls through to a 500.
func mapServiceError(err error) (status int, problemType, message string, ok bool) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "request/validation", err.Error(), true
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized, "auth/invalid-credentials", err.Error(), true
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "request/duplicate", err.Error(), true
	case errors.Is(err, service.ErrTransferNotFound),
		errors.Is(err, repository.ErrWalletNotFound),
		errors.Is(err, repository.ErrTransactionNotFound):
		return http.StatusNotFound, "resource/not-found", err.Error(), true
	case errors.Is(err, service.ErrCallbackPayloadMismatch):
		return http.StatusBadRequest, "webhook/payload-mismatch", err.Error(), true
	default:
		return 0, "", "", false
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}

// respondServiceError applies mapServiceError then mapDBError, defaulting to
// a 500 problem response.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if status, pt, msg, ok := mapServiceError(err); ok {
		RespondError(w, r, status, pt, msg)
		return
	}
	if status, pt, msg, ok := mapDBError(err); ok {
		RespondError(w, r, status, pt, msg)
		return
	}
	RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
}
