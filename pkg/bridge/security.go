// Copyright 2025-2026 Mvemba Research Systems

package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
)

// SignatureHeader carries the HMAC signature of relayed webhook payloads.
const SignatureHeader = "x-steny-signature"

// VerifyAPIKey compares a presented API key against the expected one in
// constant time. Empty keys never verify: an unset BRIDGE_API_KEY means the
// protected endpoints stay locked rather than open.
//
// The comparison only short-circuits on differing length; for equal-length
// inputs the runtime is independent of where the first differing byte sits.
func VerifyAPIKey(presented, expected string) bool {
	if presented == "" || expected == "" {
		return false
	}
	if len(presented) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// SignPayload computes the webhook integrity signature over the exact payload
// bytes: "sha256=" + hex(HMAC-SHA256(secret, payload)). The receiver must
// reproduce the same bytes, so callers sign the canonical serialization from
// CanonicalJSON and send those bytes verbatim.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// CanonicalJSON serializes v to JSON with a stable key ordering, making the
// output reproducible byte-for-byte for signing. Marshaling through a generic
// value sorts object keys on re-marshal.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("canonical: unmarshal: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("canonical: re-marshal: %w", err)
	}
	return out, nil
}

// requireAPIKey guards a handler behind the bridge API key, which may be
// presented in the x-api-key header or the key query parameter. On failure
// the wrapped handler never runs and no detail about the mismatch leaks.
func (g *Gateway) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("x-api-key")
		if presented == "" {
			presented = r.URL.Query().Get("key")
		}
		if !VerifyAPIKey(presented, g.apiKey) {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}
