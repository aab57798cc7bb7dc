// Package respond writes the JSON envelope every endpoint uses and maps
// internal errors onto the four user-visible status codes. Authentication
// failures never reveal which mechanism or sub-step failed; detail goes
// to server logs only.
package respond

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform response shape.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`

	// ResetTime carries the rate-limit reset hint in seconds, only on 429.
	ResetTime int `json:"resetTime,omitempty"`
}

// JSON writes a success envelope. A zero status defaults to 200.
func JSON(w http.ResponseWriter, status int, data any) {
	if status == 0 {
		status = http.StatusOK
	}
	write(w, status, Envelope{Success: true, Data: data})
}

// Raw writes data without the envelope, for binary payloads handled by the
// caller. It only sets the content type.
func Raw(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// Unauthenticated writes the generic 401. The message is deliberately
// uniform: it never distinguishes unknown user, wrong password, expired
// session, or bad API key.
func Unauthenticated(w http.ResponseWriter) {
	write(w, http.StatusUnauthorized, Envelope{Error: "authentication required"})
}

// Forbidden writes the generic 403.
func Forbidden(w http.ResponseWriter) {
	write(w, http.StatusForbidden, Envelope{Error: "access denied"})
}

// RateLimited writes a 429 with the seconds-until-reset hint.
func RateLimited(w http.ResponseWriter, resetSeconds int) {
	write(w, http.StatusTooManyRequests, Envelope{Error: "rate limit exceeded", ResetTime: resetSeconds})
}

// BadRequest writes a 400 with a caller-safe message.
func BadRequest(w http.ResponseWriter, msg string) {
	write(w, http.StatusBadRequest, Envelope{Error: msg})
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter) {
	write(w, http.StatusNotFound, Envelope{Error: "not found"})
}

// Conflict writes a 409 with a caller-safe message.
func Conflict(w http.ResponseWriter, msg string) {
	write(w, http.StatusConflict, Envelope{Error: msg})
}

// Internal writes the generic 500. Internals are never leaked.
func Internal(w http.ResponseWriter) {
	write(w, http.StatusInternalServerError, Envelope{Error: "internal server error"})
}

func write(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
