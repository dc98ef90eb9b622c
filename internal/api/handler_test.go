package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kwamina/walletbridge/internal/api"
	"github.com/kwamina/walletbridge/internal/api/middleware"
	"github.com/kwamina/walletbridge/internal/config"
	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/gateway"
	"github.com/kwamina/walletbridge/internal/idempotency"
	"github.com/kwamina/walletbridge/internal/models"
	"github.com/kwamina/walletbridge/internal/repository"
	"github.com/kwamina/walletbridge/internal/service"
	"github.com/kwamina/walletbridge/internal/signer"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "walletbridge-test"
	testJWTAudience = "walletbridge-api-test"
)

var (
	testAdminID = uuid.MustParse("99999999-9999-9999-9999-999999999999")
	testRailKey = signer.Credentials{AccessKey: "rail-access", SecretKey: "rail-secret"}
)

func init() {
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)
}

type apiFixture struct {
	store    *repository.MemoryStore
	peerpay  *gateway.Mock
	openbank *gateway.Mock
	bridge   *gateway.Mock
	router   http.Handler
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	store := repository.NewMemory()
	peerpay := gateway.NewMock(domain.ProviderPeerPay)
	openbank := gateway.NewMock(domain.ProviderOpenBank)
	bridge := gateway.NewMock(domain.ProviderBridgeRail)
	registry := gateway.NewRegistry().
		Register(domain.ProviderPeerPay, peerpay).
		Register(domain.ProviderOpenBank, openbank).
		Register(domain.ProviderBridgeRail, bridge)

	stateSvc := service.NewOAuthStateService(store, 10*time.Minute)
	walletSvc := service.NewWalletService(store, stateSvc, map[domain.Provider]string{
		domain.ProviderPeerPay:  "https://auth.peerpay.test/authorize",
		domain.ProviderOpenBank: "https://auth.openbank.test/authorize",
	})
	transferSvc := service.NewTransferService(store, registry, service.TransferConfig{
		Fees:            domain.NewFlatFeePolicy(750_000),
		BridgeEwalletID: "platform-ewallet",
		RetryAttempts:   2,
		RetryBackoff:    time.Millisecond,
	}).WithSleep(func(context.Context, time.Duration) error { return nil })
	reconSvc := service.NewReconciliationService(store)
	webhookSvc := service.NewWebhookService(store, signer.NewVerifier(testRailKey, 5*time.Minute), false)

	idemStore := idempotency.NewStore(nil, idempotency.NewMemoryBackend(), time.Hour)

	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		AdminUserIDs:       []string{testAdminID.String()},
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
		IdempotencyTTL:     time.Hour,
	}

	router := api.NewRouter(cfg, zap.NewNop(), nil, nil, idemStore, walletSvc, transferSvc, reconSvc, webhookSvc)
	return &apiFixture{
		store:    store,
		peerpay:  peerpay,
		openbank: openbank,
		bridge:   bridge,
		router:   router.Routes(),
	}
}

func generateTestToken(userID string) string {
	return generateTokenWithRole(userID, "user")
}

func generateTokenWithRole(userID, role string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iss":     testJWTIssuer,
		"aud":     testJWTAudience,
		"sub":     userID,
		"iat":     now.Unix(),
		"nbf":     now.Add(-30 * time.Second).Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	})
	tokenString, _ := token.SignedString(middleware.JWTSecret())
	return tokenString
}

func linkWallet(t *testing.T, f *apiFixture, userID uuid.UUID, provider domain.Provider, walletID string) {
	t.Helper()
	_, err := f.store.Link(context.Background(), repository.LinkWalletParams{
		UserID:      userID,
		Provider:    provider,
		WalletID:    walletID,
		Credentials: models.WalletCredentials{AccessToken: "tok-" + walletID},
		Metadata:    models.WalletMetadata{HolderName: "Holder " + walletID},
	})
	require.NoError(t, err)
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, payload interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProblemDetailsShape(t *testing.T) {
	f := setupAPI(t)

	req := httptest.NewRequest("GET", "/v1/wallets", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["detail"])
	assert.Equal(t, "/v1/wallets", body["instance"])
	assert.NotEmpty(t, body["request_id"])
}

func TestIssueTokenRoles(t *testing.T) {
	f := setupAPI(t)

	cases := []struct {
		name     string
		userID   string
		wantRole string
	}{
		{name: "regular_user", userID: uuid.New().String(), wantRole: "user"},
		{name: "configured_admin", userID: testAdminID.String(), wantRole: "admin"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, f.router, "POST", "/v1/auth/token", "", map[string]string{"user_id": tc.userID}, nil)
			require.Equal(t, http.StatusOK, w.Code)

			var resp struct {
				Token string `json:"token"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

			parsed, err := jwt.Parse(resp.Token, func(token *jwt.Token) (interface{}, error) {
				return middleware.JWTSecret(), nil
			}, jwt.WithIssuer(testJWTIssuer), jwt.WithAudience(testJWTAudience))
			require.NoError(t, err)
			claims, ok := parsed.Claims.(jwt.MapClaims)
			require.True(t, ok)
			assert.Equal(t, tc.wantRole, claims["role"])
		})
	}
}

func TestIssueTokenInvalidUserID(t *testing.T) {
	f := setupAPI(t)
	w := doJSON(t, f.router, "POST", "/v1/auth/token", "", map[string]string{"user_id": "not-a-uuid"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletLinkFlow(t *testing.T) {
	f := setupAPI(t)
	userID := uuid.New()
	token := generateTestToken(userID.String())

	beginW := doJSON(t, f.router, "POST", "/v1/wallets/link", token, map[string]string{
		"provider":     "peerpay",
		"redirect_uri": "https://app.example.com/callback",
	}, nil)
	require.Equal(t, http.StatusCreated, beginW.Code)

	var begin struct {
		AuthorizeURL string `json:"authorize_url"`
	}
	require.NoError(t, json.Unmarshal(beginW.Body.Bytes(), &begin))

	authorizeURL, err := url.Parse(begin.AuthorizeURL)
	require.NoError(t, err)
	state := authorizeURL.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "auth.peerpay.test", authorizeURL.Host)

	callbackW := doJSON(t, f.router, "POST", "/v1/wallets/link/callback", "", map[string]interface{}{
		"state":     state,
		"wallet_id": "pp-alice-1",
		"credentials": map[string]string{
			"access_token": "provider-token",
		},
		"metadata": map[string]string{
			"holder_name": "Alice",
		},
	}, nil)
	require.Equal(t, http.StatusCreated, callbackW.Code)

	var wallet models.ConnectedWallet
	require.NoError(t, json.Unmarshal(callbackW.Body.Bytes(), &wallet))
	assert.Equal(t, userID, wallet.UserID)
	assert.Equal(t, domain.ProviderPeerPay, wallet.Provider)
	assert.True(t, wallet.Active)

	// The state token is single-use.
	replayW := doJSON(t, f.router, "POST", "/v1/wallets/link/callback", "", map[string]interface{}{
		"state":     state,
		"wallet_id": "pp-alice-2",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, replayW.Code)

	listW := doJSON(t, f.router, "GET", "/v1/wallets", token, nil, nil)
	require.Equal(t, http.StatusOK, listW.Code)
	var list struct {
		Items []models.ConnectedWallet `json:"items"`
		Count int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(listW.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "pp-alice-1", list.Items[0].WalletID)
}

func TestWalletLinkUnknownProvider(t *testing.T) {
	f := setupAPI(t)
	token := generateTestToken(uuid.New().String())

	w := doJSON(t, f.router, "POST", "/v1/wallets/link", token, map[string]string{"provider": "acme"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletRegisterOutOfBand(t *testing.T) {
	f := setupAPI(t)
	alice := uuid.New()
	bob := uuid.New()
	token := generateTestToken(alice.String())

	w := doJSON(t, f.router, "POST", "/v1/wallets", token, map[string]interface{}{
		"provider":  "openbank",
		"wallet_id": "ob-alice-1",
		"credentials": map[string]string{
			"access_token": "imported-token",
		},
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var wallet models.ConnectedWallet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wallet))
	assert.Equal(t, alice, wallet.UserID)
	assert.Equal(t, domain.ProviderOpenBank, wallet.Provider)
	assert.True(t, wallet.Active)

	// The wallet id is a global routing key; another user cannot claim it.
	stolen := doJSON(t, f.router, "POST", "/v1/wallets", generateTestToken(bob.String()), map[string]interface{}{
		"provider":  "openbank",
		"wallet_id": "ob-alice-1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, stolen.Code)

	missing := doJSON(t, f.router, "POST", "/v1/wallets", token, map[string]string{
		"provider": "openbank",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestWalletDeactivate(t *testing.T) {
	f := setupAPI(t)
	owner := uuid.New()
	other := uuid.New()
	linkWallet(t, f, owner, domain.ProviderPeerPay, "pp-owner-1")

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{name: "foreign_wallet_reads_not_found", token: generateTestToken(other.String()), status: http.StatusNotFound},
		{name: "owner_deactivates", token: generateTestToken(owner.String()), status: http.StatusOK},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, f.router, "DELETE", "/v1/wallets/pp-owner-1", tc.token, nil, nil)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestTransferLifecycle(t *testing.T) {
	f := setupAPI(t)
	alice := uuid.New()
	bob := uuid.New()
	linkWallet(t, f, alice, domain.ProviderPeerPay, "pp-alice")
	linkWallet(t, f, bob, domain.ProviderPeerPay, "pp-bob")

	token := generateTestToken(alice.String())
	key := uuid.New().String()
	payload := map[string]interface{}{
		"source_wallet_id":      "pp-alice",
		"destination_wallet_id": "pp-bob",
		"amount_micros":         10_000_000,
		"currency":              "USD",
		"description":           "rent split",
	}

	w := doJSON(t, f.router, "POST", "/v1/transfers", token, payload, map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, w.Code)

	var tx models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	assert.Equal(t, domain.TxStatusCompleted, tx.Status)
	assert.Equal(t, domain.TransferTypeInternal, tx.Type)
	assert.Equal(t, int64(750_000), tx.FeeMicros)
	require.Len(t, tx.Legs, 1)
	assert.Equal(t, int64(9_250_000), tx.Legs[0].Amount)

	// Replay with the same key is served from the idempotency record without
	// re-running the transfer.
	replayW := doJSON(t, f.router, "POST", "/v1/transfers", token, payload, map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusCreated, replayW.Code)
	assert.NotEmpty(t, replayW.Header().Get("X-Idempotent-Replay"))

	var replayed models.Transaction
	require.NoError(t, json.Unmarshal(replayW.Body.Bytes(), &replayed))
	assert.Equal(t, tx.ID, replayed.ID)
	assert.Equal(t, 1, f.peerpay.Calls("capture"))

	// Same key, different payload.
	payload["amount_micros"] = 20_000_000
	conflictW := doJSON(t, f.router, "POST", "/v1/transfers", token, payload, map[string]string{"Idempotency-Key": key})
	assert.Equal(t, http.StatusConflict, conflictW.Code)

	getW := doJSON(t, f.router, "GET", "/v1/transfers/"+tx.ID.String(), token, nil, nil)
	require.Equal(t, http.StatusOK, getW.Code)

	foreignW := doJSON(t, f.router, "GET", "/v1/transfers/"+tx.ID.String(), generateTestToken(bob.String()), nil, nil)
	assert.Equal(t, http.StatusNotFound, foreignW.Code)

	cancelW := doJSON(t, f.router, "POST", "/v1/transfers/"+tx.ID.String()+"/cancel", token, map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, cancelW.Code)
}

func TestTransferFailureIsAnOutcome(t *testing.T) {
	f := setupAPI(t)
	alice := uuid.New()
	bob := uuid.New()
	linkWallet(t, f, alice, domain.ProviderPeerPay, "pp-alice")
	linkWallet(t, f, bob, domain.ProviderPeerPay, "pp-bob")
	f.peerpay.Decline("authorize")

	w := doJSON(t, f.router, "POST", "/v1/transfers", generateTestToken(alice.String()), map[string]interface{}{
		"source_wallet_id":      "pp-alice",
		"destination_wallet_id": "pp-bob",
		"amount_micros":         5_000_000,
		"currency":              "USD",
	}, map[string]string{"Idempotency-Key": uuid.New().String()})

	require.Equal(t, http.StatusCreated, w.Code)
	var tx models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	assert.Equal(t, domain.TxStatusFailed, tx.Status)
	assert.Equal(t, domain.FailureDeclined, tx.FailureKind)
}

func TestTransferMissingIdempotencyKey(t *testing.T) {
	f := setupAPI(t)
	token := generateTestToken(uuid.New().String())

	w := doJSON(t, f.router, "POST", "/v1/transfers", token, map[string]interface{}{
		"source_wallet_id":      "a",
		"destination_wallet_id": "b",
		"amount_micros":         1,
		"currency":              "USD",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOpsReconciliationEndpoints(t *testing.T) {
	f := setupAPI(t)

	flagged := &models.Transaction{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		SourceWalletID:    "pp-src",
		DestWalletID:      "ob-dst",
		AmountMicros:      25_000_000,
		FeeMicros:         750_000,
		Currency:          "USD",
		Type:              domain.TransferTypeBridge,
		Status:            domain.TxStatusFailed,
		FailureKind:       domain.FailureUnavailable,
		ReconcileRequired: true,
		ReconcileReason:   "collect succeeded, payout failed",
	}
	_, _, err := f.store.Create(context.Background(), flagged)
	require.NoError(t, err)

	userToken := generateTestToken(uuid.New().String())
	adminToken := generateTokenWithRole(testAdminID.String(), "admin")

	forbiddenW := doJSON(t, f.router, "GET", "/v1/ops/reconciliation", userToken, nil, nil)
	assert.Equal(t, http.StatusForbidden, forbiddenW.Code)

	listW := doJSON(t, f.router, "GET", "/v1/ops/reconciliation", adminToken, nil, nil)
	require.Equal(t, http.StatusOK, listW.Code)
	var list struct {
		Items []models.Transaction `json:"items"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(listW.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, flagged.ID, list.Items[0].ID)

	resolveW := doJSON(t, f.router, "POST", "/v1/ops/reconciliation/"+flagged.ID.String()+"/resolve", adminToken,
		map[string]string{"note": "settled against provider report"}, nil)
	require.Equal(t, http.StatusOK, resolveW.Code)
	var resolved models.Transaction
	require.NoError(t, json.Unmarshal(resolveW.Body.Bytes(), &resolved))
	assert.False(t, resolved.ReconcileRequired)
	assert.Equal(t, domain.TxStatusFailed, resolved.Status)

	emptyW := doJSON(t, f.router, "GET", "/v1/ops/reconciliation", adminToken, nil, nil)
	require.Equal(t, http.StatusOK, emptyW.Code)
	require.NoError(t, json.Unmarshal(emptyW.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Count)
}

func TestSettlementWebhook(t *testing.T) {
	f := setupAPI(t)

	flagged := &models.Transaction{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		SourceWalletID:    "pp-src",
		DestWalletID:      "ob-dst",
		AmountMicros:      25_000_000,
		FeeMicros:         750_000,
		Currency:          "USD",
		Type:              domain.TransferTypeBridge,
		Status:            domain.TxStatusFailed,
		ReconcileRequired: true,
		ReconcileReason:   "collect succeeded, payout failed",
	}
	_, _, err := f.store.Create(context.Background(), flagged)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]interface{}{
		"transaction_id": flagged.ID.String(),
		"capture_id":     "rail-cap-1",
		"amount_micros":  flagged.NetMicros(),
		"status":         "settled",
	})
	require.NoError(t, err)

	sig, err := signer.New(testRailKey).Sign("POST", "/v1/webhooks/settlement", body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/v1/webhooks/settlement", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Key", sig.AccessKey)
	req.Header.Set("X-Salt", sig.Salt)
	req.Header.Set("X-Timestamp", strconv.FormatInt(sig.Timestamp, 10))
	req.Header.Set("X-Signature", sig.Value)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp service.SettlementCallbackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Reconciled)

	stored, err := f.store.Get(context.Background(), flagged.ID)
	require.NoError(t, err)
	assert.False(t, stored.ReconcileRequired)
}

func TestSettlementWebhookBadSignature(t *testing.T) {
	f := setupAPI(t)

	body := []byte(`{"transaction_id":"` + uuid.New().String() + `","status":"settled"}`)
	req := httptest.NewRequest("POST", "/v1/webhooks/settlement", bytes.NewReader(body))
	req.Header.Set("X-Access-Key", testRailKey.AccessKey)
	req.Header.Set("X-Salt", "somesalt")
	req.Header.Set("X-Timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("X-Signature", "deadbeef")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthAndDocs(t *testing.T) {
	f := setupAPI(t)

	cases := []struct {
		name string
		path string
	}{
		{name: "live", path: "/health/live"},
		{name: "ready", path: "/health/ready"},
		{name: "metrics", path: "/metrics"},
		{name: "openapi", path: "/openapi.yaml"},
		{name: "swagger", path: "/swagger/index.html"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
