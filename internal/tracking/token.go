// Package tracking provides the signed one-time tokens that bind a
// track-event request to the page path it was issued for.
package tracking

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultTTL is the default token lifetime.
	DefaultTTL = 12 * time.Hour

	// MinTTL is the floor applied to configured lifetimes.
	MinTTL = 60 * time.Second

	// ExpiryGrace tolerates clock skew between issuer and verifier.
	ExpiryGrace = 30 * time.Second

	tokenVersion = 1
)

// VerifyReason explains the outcome of a token verification.
type VerifyReason string

const (
	ReasonOK                  VerifyReason = "ok"
	ReasonSecretNotConfigured VerifyReason = "secret_not_configured"
	ReasonMissingToken        VerifyReason = "missing_token"
	ReasonInvalidFormat       VerifyReason = "invalid_format"
	ReasonInvalidSignature    VerifyReason = "invalid_signature"
	ReasonInvalidPayload      VerifyReason = "invalid_payload"
	ReasonExpired             VerifyReason = "expired"
	ReasonPathMismatch        VerifyReason = "path_mismatch"
)

// tokenPayload is the signed claim set.
type tokenPayload struct {
	V    int    `json:"v"`
	Path string `json:"path"`
	IAT  int64  `json:"iat"`
	EXP  int64  `json:"exp"`
}

// VerifyResult is the outcome of Verify.
type VerifyResult struct {
	OK     bool
	Reason VerifyReason
	Path   string // bound path, set when the payload parsed
}

var multiSlash = regexp.MustCompile(`/{2,}`)

// NormalizePath canonicalizes a request path for signing and scoping:
// query/fragment stripped, leading slash ensured, duplicate slashes
// collapsed, trailing slash trimmed (except root).
func NormalizePath(pathname string) string {
	trimmed := strings.TrimSpace(pathname)
	if trimmed == "" {
		return ""
	}

	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	trimmed = multiSlash.ReplaceAllString(trimmed, "/")
	if len(trimmed) > 1 {
		trimmed = strings.TrimSuffix(trimmed, "/")
	}
	return trimmed
}

// Signer issues and verifies path-bound tracking tokens. A Signer with an
// empty secret treats every verification as passed, the explicit escape
// hatch for environments without the secret provisioned.
type Signer struct {
	secret string
	now    func() time.Time
}

// NewSigner creates a Signer. The secret may be empty.
func NewSigner(secret string) *Signer {
	return &Signer{secret: strings.TrimSpace(secret), now: time.Now}
}

// Enabled reports whether signature verification is enforced.
func (s *Signer) Enabled() bool {
	return s.secret != ""
}

// Create issues a token bound to the given path. Returns an empty token when
// no secret is configured or the path is empty.
func (s *Signer) Create(pathname string, ttl time.Duration) string {
	normalized := NormalizePath(pathname)
	if s.secret == "" || normalized == "" {
		return ""
	}

	if ttl < MinTTL {
		ttl = MinTTL
	}
	now := s.now().Unix()
	payload := tokenPayload{
		V:    tokenVersion,
		Path: normalized,
		IAT:  now,
		EXP:  now + int64(ttl.Seconds()),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return fmt.Sprintf("%s.%s", encoded, s.sign(encoded))
}

// Verify checks the token signature, payload shape, expiry, and bound path.
func (s *Signer) Verify(token, expectedPath string) VerifyResult {
	if s.secret == "" {
		return VerifyResult{OK: true, Reason: ReasonSecretNotConfigured}
	}

	if strings.TrimSpace(token) == "" {
		return VerifyResult{Reason: ReasonMissingToken}
	}

	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return VerifyResult{Reason: ReasonInvalidFormat}
	}
	encoded, signature := parts[0], parts[1]

	if !hmac.Equal([]byte(s.sign(encoded)), []byte(signature)) {
		return VerifyResult{Reason: ReasonInvalidSignature}
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return VerifyResult{Reason: ReasonInvalidPayload}
	}
	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return VerifyResult{Reason: ReasonInvalidPayload}
	}
	if payload.V != tokenVersion || payload.Path == "" || payload.IAT <= 0 || payload.EXP <= 0 {
		return VerifyResult{Reason: ReasonInvalidPayload}
	}

	now := s.now().Unix()
	if payload.EXP < now-int64(ExpiryGrace.Seconds()) {
		return VerifyResult{Reason: ReasonExpired, Path: payload.Path}
	}

	if normalized := NormalizePath(expectedPath); normalized != "" && payload.Path != normalized {
		return VerifyResult{Reason: ReasonPathMismatch, Path: payload.Path}
	}

	return VerifyResult{OK: true, Reason: ReasonOK, Path: payload.Path}
}

// sign computes the base64url HMAC-SHA256 over the encoded payload.
func (s *Signer) sign(encodedPayload string) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write([]byte(encodedPayload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
