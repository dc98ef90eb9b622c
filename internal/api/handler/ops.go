package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kwamina/walletbridge/internal/service"
)

// OpsHandler exposes the operator-only reconciliation queue. Routes are
// mounted behind RequireRole("admin").
type OpsHandler struct {
	recon *service.ReconciliationService
}

func NewOpsHandler(recon *service.ReconciliationService) *OpsHandler {
	return &OpsHandler{recon: recon}
}

// ListReconciliation handles GET /v1/ops/reconciliation.
func (h *OpsHandler) ListReconciliation(w http.ResponseWriter, r *http.Request) {
	limit := int32(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed <= 0 {
			RespondError(w, r, http.StatusBadRequest, "request/validation", "limit must be a positive integer")
			return
		}
		limit = int32(parsed)
	}

	items, err := h.recon.List(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"count": len(items),
	})
}

// ResolveReconciliation handles POST /v1/ops/reconciliation/{id}/resolve.
func (h *OpsHandler) ResolveReconciliation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/validation", "invalid transaction id")
		return
	}

	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	if req.Note == "" {
		RespondError(w, r, http.StatusBadRequest, "request/validation", "a resolution note is required")
		return
	}

	tx, err := h.recon.Resolve(r.Context(), id, req.Note)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, tx)
}
