package idempotency

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

type KeySource string

const (
	KeyFromHeader    KeySource = "header"
	KeyFromComposite KeySource = "composite"
)

// Request is the part of a mutating call that identifies a retry.
type Request struct {
	Header string
	Caller string
	Method string
	Path   string
	Body   []byte
}

// DeriveKey returns a stable idempotency key and the source used.
// - Prefer an explicit Idempotency-Key header when provided.
// - Fall back to BLAKE3 over caller, method, path and body.
// Header keys are namespaced by caller so two callers cannot collide.
func DeriveKey(r Request) (key string, src KeySource) {
	if h := strings.TrimSpace(r.Header); h != "" {
		return r.Caller + "|" + h, KeyFromHeader
	}
	hasher := blake3.New()
	for _, part := range []string{r.Caller, r.Method, r.Path} {
		_, _ = hasher.Write([]byte(part))
		_, _ = hasher.Write([]byte{0})
	}
	_, _ = hasher.Write(r.Body)
	return hex.EncodeToString(hasher.Sum(nil)), KeyFromComposite
}

// Fingerprint hashes the request content, ignoring any header key.
func Fingerprint(r Request) string {
	r.Header = ""
	key, _ := DeriveKey(r)
	return key
}
