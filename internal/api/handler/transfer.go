package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kwamina/walletbridge/internal/service"
)

type TransferHandler struct {
	svc *service.TransferService
}

func NewTransferHandler(svc *service.TransferService) *TransferHandler {
	return &TransferHandler{svc: svc}
}

// Create handles POST /v1/transfers. The transfer executes synchronously; a
// provider refusal comes back as a 201 with status FAILED, not as an HTTP
// error. The Idempotency-Key header doubles as the transfer's client key.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	clientKey := r.Header.Get("Idempotency-Key")
	if clientKey == "" {
		RespondError(w, r, http.StatusBadRequest, "idempotency/missing-key", "Idempotency-Key header is required")
		return
	}

	var req struct {
		SourceWalletID string `json:"source_wallet_id"`
		DestWalletID   string `json:"destination_wallet_id"`
		AmountMicros   int64  `json:"amount_micros"`
		Currency       string `json:"currency"`
		Description    string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	tx, err := h.svc.CreateTransfer(r.Context(), service.CreateTransferRequest{
		UserID:         actorID,
		SourceWalletID: req.SourceWalletID,
		DestWalletID:   req.DestWalletID,
		AmountMicros:   req.AmountMicros,
		Currency:       req.Currency,
		Description:    req.Description,
		ClientKey:      clientKey,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, tx)
}

// Get handles GET /v1/transfers/{id}.
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/validation", "invalid transfer id")
		return
	}

	tx, err := h.svc.Get(r.Context(), actorID, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, tx)
}

// Cancel handles POST /v1/transfers/{id}/cancel. Only transfers that have not
// yet reached a provider can be cancelled.
func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/validation", "invalid transfer id")
		return
	}

	tx, err := h.svc.Cancel(r.Context(), actorID, id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, tx)
}
