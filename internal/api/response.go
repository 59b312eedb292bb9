// Package api: HTTP response utilities.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// replyMessage is the webhook reply envelope; the provider renders Text back
// to the sender as an SMS.
type replyMessage struct {
	Text string `json:"text"`
}

// apiError is the JSON error envelope for non-webhook endpoints.
type apiError struct {
	Error string `json:"error"`
}

func errorReply(msg string) apiError {
	return apiError{Error: msg}
}

// Pre-marshaled fallback response to avoid runtime JSON encoding failures.
var fallbackErrorResponse = []byte(`{"error":"internal server error"}`)

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first to catch encoding errors before writing headers
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeText writes a plain-text response for the provider webhooks that
// expect a bare body.
func writeText(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Error("Server.writeText: failed to write response", "error", err)
	}
}
