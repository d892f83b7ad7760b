package httputil

import (
	"encoding/json"
	"net/http"
)

// Machine-readable reason codes for 401 responses. Deliberately coarse so
// a caller cannot tell which individual check failed.
const (
	CodeMissingCredentials = "missing_credentials"
	CodeInvalidSignature   = "invalid_signature"
	CodeTokenExpired       = "token_expired"
	CodeInvalidToken       = "invalid_token"
)

// JSON writes a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// NotFound writes the canonical not-found response. The path-obfuscation
// gate and the router's genuine 404 both go through here so a rejected
// admin probe is byte-identical to a missing route.
func NotFound(w http.ResponseWriter) {
	Error(w, http.StatusNotFound, "not found")
}
