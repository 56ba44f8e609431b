package web

import (
	"encoding/json"
	"net/http"

	"github.com/hpungsan/lib/internal/errors"
)

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes the flattened error payload with the error's status.
func renderError(w http.ResponseWriter, err error) {
	payload := errors.Payload(err)
	status, _ := payload["status"].(int)
	if status < 400 || status > 599 {
		// Unreachable for LibErrors built by the constructors.
		status = http.StatusInternalServerError
	}
	renderJSON(w, status, payload)
}
