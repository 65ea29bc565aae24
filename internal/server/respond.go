package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/agentctl/engine/internal/apperr"
)

// MaxPayloadSize bounds request bodies the REST layer will decode.
const MaxPayloadSize = 1 * 1024 * 1024

// limitRequestSize wraps r's body in a MaxBytesReader so an oversized
// payload fails the eventual json.Decode instead of exhausting memory.
func limitRequestSize(r *http.Request, maxSize int64) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxSize)
}

// errorResponse is the JSON shape returned for every non-2xx
// response.
type errorResponse struct {
	Error   string            `json:"error"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// respondJSON writes data as a status-coded JSON body.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[HTTP] failed to encode response: %v", err)
	}
}

// respondError translates err into the conventional status code and
// error body, using apperr.KindOf/StatusHint instead of string matching.
func respondError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.StatusHint(kind)
	body := errorResponse{Error: err.Error()}

	if ae, ok := err.(*apperr.Error); ok {
		body.Details = ae.Details
	}
	if status >= 500 {
		log.Printf("[HTTP_ERROR] %v", err)
	}
	respondJSON(w, status, body)
}

// respondErrorStatus writes a bare status/message pair for failures that
// never reached an apperr.Error (e.g. malformed JSON).
func respondErrorStatus(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
