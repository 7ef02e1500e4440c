package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/buildrite/siteops/internal/workflow"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// writeError maps workflow errors onto the API's error envelope. Unexpected
// errors deliberately surface as an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadBody):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case workflow.IsValidation(err):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case workflow.IsNotFound(err):
		writeMessage(w, http.StatusNotFound, "not found")
	case workflow.IsForbidden(err):
		writeMessage(w, http.StatusForbidden, "forbidden")
	default:
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

var errBadBody = errors.New("invalid request body")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errBadBody
	}
	return nil
}
