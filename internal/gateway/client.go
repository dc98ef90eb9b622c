package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/observability"
	"github.com/kwamina/walletbridge/internal/signer"
)

const defaultTimeout = 15 * time.Second

// AuthFunc attaches provider credentials to an outgoing request. The raw body
// is passed separately because signed schemes cover it.
type AuthFunc func(req *http.Request, body []byte) error

// BearerAuth returns an AuthFunc that sets a static bearer token.
func BearerAuth(token string) AuthFunc {
	return func(req *http.Request, _ []byte) error {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// SignedAuth returns an AuthFunc that signs each request with the platform's
// settlement-rail credentials. A fresh signature is produced per attempt.
func SignedAuth(s *signer.Signer) AuthFunc {
	return func(req *http.Request, body []byte) error {
		sig, err := s.Sign(req.Method, req.URL.Path, body)
		if err != nil {
			return err
		}
		req.Header.Set("X-Access-Key", sig.AccessKey)
		req.Header.Set("X-Salt", sig.Salt)
		req.Header.Set("X-Timestamp", strconv.FormatInt(sig.Timestamp, 10))
		req.Header.Set("X-Signature", sig.Value)
		return nil
	}
}

// Transport is the HTTP plumbing shared by every provider variant. Variants
// own their path layout and payload shapes; Transport owns auth, idempotency
// headers and the mapping from transport faults and status codes to the
// normalized error kinds.
type Transport struct {
	Provider domain.Provider
	BaseURL  string
	Auth     AuthFunc
	Client   *http.Client
	Log      *zap.Logger
}

// NewTransport builds a transport with the default timeout.
func NewTransport(provider domain.Provider, baseURL string, auth AuthFunc) *Transport {
	return &Transport{
		Provider: provider,
		BaseURL:  baseURL,
		Auth:     auth,
		Client:   &http.Client{Timeout: defaultTimeout},
		Log:      zap.L(),
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PostJSON sends a JSON body and decodes a JSON response into out. A non-2xx
// status or transport fault comes back as *Error.
func (t *Transport) PostJSON(ctx context.Context, op, path, idempotencyKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return newError(t.Provider, op, KindInvalidParams, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return newError(t.Provider, op, KindInvalidParams, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if t.Auth != nil {
		if err := t.Auth(req, body); err != nil {
			return newError(t.Provider, op, KindAuth, err.Error())
		}
	}

	start := time.Now()
	resp, err := t.Client.Do(req)
	if err != nil {
		observability.ObserveGatewayCall(string(t.Provider), op, string(KindUnavailable), time.Since(start))
		return newError(t.Provider, op, KindUnavailable, err.Error())
	}
	defer resp.Body.Close()

	outcome := "ok"
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome = string(kindForStatus(resp.StatusCode))
	}
	observability.ObserveGatewayCall(string(t.Provider), op, outcome, time.Since(start))

	t.Log.Debug("gateway call",
		zap.String("provider", string(t.Provider)),
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return newError(t.Provider, op, KindUnavailable, fmt.Sprintf("decode response: %v", err))
		}
		return nil
	}

	detail := readAPIError(resp.Body)
	return newError(t.Provider, op, kindForStatus(resp.StatusCode), detail)
}

func readAPIError(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var e apiError
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		if e.Code != "" {
			return e.Code + ": " + e.Message
		}
		return e.Message
	}
	return string(raw)
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusPaymentRequired || status == http.StatusConflict:
		return KindDeclined
	case status == http.StatusTooManyRequests || status >= 500:
		return KindUnavailable
	case status == http.StatusRequestTimeout:
		return KindUnavailable
	default:
		return KindInvalidParams
	}
}
