package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the standard error envelope returned by the feed server
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// RespondJSON writes data as a JSON response with the given status code
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		// headers are already sent; a failed encode only truncates the body
		_ = json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes a standard error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondValidationError writes field-level validation errors as a 400 response
func RespondValidationError(w http.ResponseWriter, fieldErrors map[string]string) {
	RespondJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "Validation failed",
		Details: fieldErrors,
	})
}

// RespondUpstreamError maps an upstream failure to 502 Bad Gateway
func RespondUpstreamError(w http.ResponseWriter, err error) {
	RespondError(w, http.StatusBadGateway, "Upstream request failed: "+err.Error())
}
