package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
	"github.com/kwamina/walletbridge/internal/service"
)

// WalletHandler exposes the wallet registry and the OAuth-style linking flow.
type WalletHandler struct {
	svc *service.WalletService
}

func NewWalletHandler(svc *service.WalletService) *WalletHandler {
	return &WalletHandler{svc: svc}
}

// BeginLink handles POST /v1/wallets/link. It issues a state token and
// returns the provider consent URL the client must redirect the user to.
func (h *WalletHandler) BeginLink(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	var req struct {
		Provider    string `json:"provider"`
		RedirectURI string `json:"redirect_uri"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	provider, err := domain.ParseProvider(req.Provider)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	result, err := h.svc.BeginLink(r.Context(), actorID, provider, req.RedirectURI)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, result)
}

// CompleteLink handles POST /v1/wallets/link/callback. The state token is the
// only credential: the user and provider come from the consumed state, so the
// route carries no bearer auth.
func (h *WalletHandler) CompleteLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State       string                   `json:"state"`
		WalletID    string                   `json:"wallet_id"`
		Credentials models.WalletCredentials `json:"credentials"`
		Metadata    models.WalletMetadata    `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	wallet, err := h.svc.CompleteLink(r.Context(), service.CompleteLinkParams{
		StateToken:  req.State,
		WalletID:    req.WalletID,
		Credentials: req.Credentials,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, wallet)
}

// Register handles POST /v1/wallets, the out-of-band path for wallets whose
// credentials were obtained without an OAuth handshake.
func (h *WalletHandler) Register(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	var req struct {
		Provider    string                   `json:"provider"`
		WalletID    string                   `json:"wallet_id"`
		Credentials models.WalletCredentials `json:"credentials"`
		Metadata    models.WalletMetadata    `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	provider, err := domain.ParseProvider(req.Provider)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	wallet, err := h.svc.Register(r.Context(), actorID, service.RegisterParams{
		Provider:    provider,
		WalletID:    req.WalletID,
		Credentials: req.Credentials,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusCreated, wallet)
}

// List handles GET /v1/wallets and returns the caller's active wallets.
func (h *WalletHandler) List(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	wallets, err := h.svc.List(r.Context(), actorID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]interface{}{
		"items": wallets,
		"count": len(wallets),
	})
}

// Deactivate handles DELETE /v1/wallets/{walletID}.
func (h *WalletHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	walletID := chi.URLParam(r, "walletID")
	if walletID == "" {
		RespondError(w, r, http.StatusBadRequest, "request/validation", "wallet id is required")
		return
	}

	if err := h.svc.Deactivate(r.Context(), actorID, walletID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "deactivated", "wallet_id": walletID})
}
