package httpapi

import (
	"encoding/json"
	"net/http"
)

// Error codes used in errorResponseWire.Code, named after the failure they
// describe rather than the HTTP status (a given status can carry more than
// one code, e.g. 400 covers both INVALID_DEVICE and INVALID_BODY).
const (
	codeInvalidBody     = "INVALID_BODY"
	codeInvalidDevice   = "INVALID_DEVICE"
	codeUnauthorized    = "UNAUTHORIZED"
	codeForbidden       = "FORBIDDEN"
	codeNotFound        = "NOT_FOUND"
	codeAlreadyResolved = "ALREADY_RESOLVED"
	codeTooManyRequests = "TOO_MANY_REQUESTS"
	codeInternal        = "INTERNAL"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string, now int64) {
	writeJSON(w, status, errorResponseWire{
		Error:     message,
		Code:      code,
		Timestamp: now,
		RequestID: requestID,
	})
}
