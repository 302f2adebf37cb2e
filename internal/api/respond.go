package api

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func respondValidation(w http.ResponseWriter, details []FieldError) {
	respondJSON(w, http.StatusBadRequest, errorResponse{
		Error:   "Validation error",
		Details: details,
	})
}

// decodeJSON reads a JSON body of at most 1 MiB into v.
func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}
