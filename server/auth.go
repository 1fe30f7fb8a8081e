package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
)

const (
	headerCallerID  = "X-Caller-Id"
	headerSignature = "X-Signature"
)

// callerAuth admits only the named caller, verified by an HMAC-SHA256
// signature over the raw request body. The body is rewound for the handler.
func (s *Server) callerAuth(callerID, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "unreadable body", "bad_request")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			if r.Header.Get(headerCallerID) != callerID {
				writeError(w, http.StatusUnauthorized, "unknown caller", "unauthorized")
				return
			}
			if !verifySignature(body, secret, r.Header.Get(headerSignature)) {
				writeError(w, http.StatusUnauthorized, "signature mismatch", "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifySignature(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
