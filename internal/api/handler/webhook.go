package handler

import (
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kwamina/walletbridge/internal/service"
	"github.com/kwamina/walletbridge/internal/signer"
)

// WebhookHandler receives signed settlement callbacks from the settlement
// rail.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// HandleSettlementCallback handles POST /v1/webhooks/settlement. The HMAC
// signature arrives split across the rail's four signature headers.
func (h *WebhookHandler) HandleSettlementCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		zap.L().Error("read settlement callback body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "failed to read request body")
		return
	}

	ts, _ := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64)
	sig := signer.Signature{
		Salt:      r.Header.Get("X-Salt"),
		Timestamp: ts,
		AccessKey: r.Header.Get("X-Access-Key"),
		Value:     r.Header.Get("X-Signature"),
	}

	resp, err := h.webhookSvc.HandleSettlementCallback(r.Context(), r.Method, r.URL.Path, body, sig)
	if err != nil {
		zap.L().Warn("settlement callback rejected", zap.Error(err))
		respondServiceError(w, r, err)
		return
	}

	RespondJSON(w, http.StatusOK, resp)
}
