package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kwamina/walletbridge/internal/api/middleware"
)

// AuthHandler mints access tokens. Identity lives upstream; this endpoint
// trusts the caller-supplied user id and exists for integrations and local
// development. Operator ids listed in the admin set receive the admin role.
type AuthHandler struct {
	adminIDs map[string]bool
	tokenTTL time.Duration
}

func NewAuthHandler(adminIDs []string) *AuthHandler {
	set := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		set[id] = true
	}
	return &AuthHandler{adminIDs: set, tokenTTL: 24 * time.Hour}
}

// IssueToken handles POST /v1/auth/token.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	uid, err := uuid.Parse(req.UserID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/validation", "invalid user_id")
		return
	}

	role := "user"
	if h.adminIDs[uid.String()] {
		role = "admin"
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": uid.String(),
		"role":    role,
		"sub":     uid.String(),
		"iat":     now.Unix(),
		"exp":     now.Add(h.tokenTTL).Unix(),
	}
	if iss := middleware.JWTIssuer(); iss != "" {
		claims["iss"] = iss
	}
	if aud := middleware.JWTAudience(); aud != "" {
		claims["aud"] = aud
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(middleware.JWTSecret())
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "auth/token-signing", "failed to sign token")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}
