// Package signer builds and verifies the HMAC request signatures required by
// providers that do not accept plain bearer tokens (today only the settlement
// rail). The canonical string layout is fixed: method, path, salt, timestamp,
// access key, body, joined by newlines, signed with HMAC-SHA256.
package signer

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrTimestampSkew    = errors.New("timestamp outside tolerance window")
)

// Credentials hold the provider-issued key pair used for signing.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Signature is the header set consumers attach to an outbound request.
type Signature struct {
	Salt      string
	Timestamp int64 // unix seconds
	AccessKey string
	Value     string // hex-encoded HMAC-SHA256
}

// Signer produces request signatures. The zero value is not usable; construct
// with New so the clock can be injected in tests.
type Signer struct {
	creds Credentials
	now   func() time.Time
}

// New creates a Signer for the given credentials.
func New(creds Credentials) *Signer {
	return &Signer{creds: creds, now: time.Now}
}

// WithClock overrides the wall clock. Test hook only; production callers
// always sign with the call's own time.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign generates a fresh random salt, reads the current wall-clock time and
// returns the signature header set for the request. The salt is never reused
// and the timestamp is never caller-supplied.
func (s *Signer) Sign(method, path string, body []byte) (Signature, error) {
	salt, err := newSalt()
	if err != nil {
		return Signature{}, fmt.Errorf("generate salt: %w", err)
	}
	ts := s.now().Unix()
	return Signature{
		Salt:      salt,
		Timestamp: ts,
		AccessKey: s.creds.AccessKey,
		Value:     compute(s.creds.SecretKey, method, path, salt, ts, s.creds.AccessKey, body),
	}, nil
}

// Verifier checks inbound signed requests (signed provider callbacks).
type Verifier struct {
	creds     Credentials
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a Verifier with the given skew tolerance.
func NewVerifier(creds Credentials, tolerance time.Duration) *Verifier {
	return &Verifier{creds: creds, tolerance: tolerance, now: time.Now}
}

// WithClock overrides the wall clock for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify recomputes the canonical signature and rejects on any mismatch or on
// timestamp skew beyond the tolerance window. Comparison is constant-time.
func (v *Verifier) Verify(method, path string, sig Signature, body []byte) error {
	skew := v.now().Sub(time.Unix(sig.Timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return ErrTimestampSkew
	}
	if sig.AccessKey != v.creds.AccessKey {
		return ErrInvalidSignature
	}
	expected := compute(v.creds.SecretKey, method, path, sig.Salt, sig.Timestamp, sig.AccessKey, body)
	if !hmac.Equal([]byte(expected), []byte(sig.Value)) {
		return ErrInvalidSignature
	}
	return nil
}

// compute builds the canonical string and returns its keyed hash. Field order
// is fixed and must match the provider's documented layout exactly.
func compute(secret, method, path, salt string, ts int64, accessKey string, body []byte) string {
	canonical := strings.Join([]string{
		strings.ToUpper(method),
		path,
		salt,
		strconv.FormatInt(ts, 10),
		accessKey,
		string(body),
	}, "\n")

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

func newSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
