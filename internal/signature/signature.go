package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HeaderName carries the push signature on the wire.
const HeaderName = "X-Hub-Signature-256"

const headerPrefix = "sha256="

// Sign computes the hex HMAC-SHA256 digest of body keyed by secret. It is a
// pure function of the secret and the exact byte sequence of the body; no
// normalization is applied.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Header formats the digest the way the collector expects it on the wire.
func Header(secret string, body []byte) string {
	return headerPrefix + Sign(secret, body)
}

// FromHeader extracts the hex digest from a signature header value. Returns
// false if the value does not carry the sha256= prefix.
func FromHeader(value string) (string, bool) {
	digest, ok := strings.CutPrefix(value, headerPrefix)
	if !ok || digest == "" {
		return "", false
	}
	return digest, true
}

// Verify reports whether presentedHex is the correct digest of body under
// secret. The comparison is constant time. An empty secret fails closed: a
// verifier with no configured secret rejects everything, including payloads
// signed with an empty secret.
func Verify(secret string, body []byte, presentedHex string) bool {
	if secret == "" || presentedHex == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(presentedHex))
}

// SecretProvider abstracts secret lookup so a rotating or per-tenant scheme
// can replace the static shared secret without touching verification.
type SecretProvider interface {
	Secret() (string, error)
}

// StaticSecret is a SecretProvider backed by a single fixed value.
type StaticSecret string

func (s StaticSecret) Secret() (string, error) {
	return string(s), nil
}
