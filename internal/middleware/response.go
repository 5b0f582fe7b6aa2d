package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// errorResponse mirrors transport.Response's {ok, error, message} envelope,
// so a request rejected by middleware before it ever reaches transport
// (rate limit, missing API key, panic, timeout) looks the same to a caller
// as a tool call that failed inside Guard.Run.
type errorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeErrorResponse writes a transport.Response-shaped error with the given
// status code. errorCode is a middleware-level code such as "rate_limited",
// "unauthorized", "timeout" or "internal_error"; transport.statusFor does not
// map these, so the caller chooses statusCode itself.
func writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := errorResponse{OK: false, Error: errorCode, Message: message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Str("message", message).Msg("Failed to encode middleware error response")
	}
}
