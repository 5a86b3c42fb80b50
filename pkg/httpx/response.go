package httpx

import (
	"encoding/json"
	"log"
	"net/http"
)

// RespondJSON writes a JSON response with the given status code and data.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

// RespondPlainError writes a single-line text/plain diagnostic, the
// contract the query engine's HTTP endpoints use for 400 responses
// (OpenTSDB returns text, not a JSON envelope, for query parse errors).
func RespondPlainError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(message)); err != nil {
		log.Printf("failed to write plain error response: %v", err)
	}
}

// RespondEmpty writes a bare status code with no body, used for 413
// responses when the result buffer is too small to serialize.
func RespondEmpty(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}

// RespondRaw writes a pre-encoded JSON body verbatim, used when the
// caller has already marshaled and size-checked the payload itself.
func RespondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Printf("failed to write raw JSON response: %v", err)
	}
}