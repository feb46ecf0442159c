package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/tutord/tutor-runtime/internal/apperr"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[server] encode response failed: %v", err)
		}
	}
}

// respondError translates err to its stable discriminant and HTTP status
// (spec §7). Unrecognized errors fall back to 500/Internal.
func respondError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	log.Printf("[server] request failed: %v", err)
	respondJSON(w, status, map[string]any{
		"error": err.Error(),
		"kind":  string(apperr.KindOf(err)),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "decode request body", err)
	}
	return nil
}
