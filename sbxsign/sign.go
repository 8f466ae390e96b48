// Package sbxsign computes the HMAC signatures envd accepts on
// download/upload URLs when the sandbox descriptor carries an access
// token. A signature authorizes one operation on one path for one user
// until its expiration timestamp.
package sbxsign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"
)

// Operation identifies which file operation a signature authorizes.
type Operation string

const (
	OperationRead  Operation = "read"
	OperationWrite Operation = "write"
)

// URL computes the signature for (path, operation, user, token,
// expirationSeconds) and returns the query parameters to attach:
// username, signature, signature_expiration.
func URL(path string, op Operation, user, token string, expiration time.Duration) url.Values {
	expiresAt := time.Now().Add(expiration).Unix()
	sig := compute(path, op, user, token, expiresAt)

	v := url.Values{}
	v.Set("username", user)
	v.Set("signature", sig)
	v.Set("signature_expiration", fmt.Sprintf("%d", expiresAt))
	return v
}

// Verify recomputes the signature and compares it in constant time. Useful
// for tests and for any agent-side fake used by this SDK's own test suite.
func Verify(path string, op Operation, user, token string, expiresAt int64, signature string) bool {
	if time.Now().Unix() > expiresAt {
		return false
	}
	want := compute(path, op, user, token, expiresAt)
	return hmac.Equal([]byte(want), []byte(signature))
}

func compute(path string, op Operation, user, token string, expiresAt int64) string {
	mac := hmac.New(sha256.New, []byte(token))
	fmt.Fprintf(mac, "%s:%s:%s:%d", path, op, user, expiresAt)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
