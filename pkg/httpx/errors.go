package httpx

import (
	"net/http"

	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error" example:"Unauthorized"`
}

// WriteError maps err onto the error taxonomy and writes it. Errors outside
// the taxonomy become a bare 500 and are logged with their full chain.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := errx.Status(err)
	log := slogx.FromContext(r.Context())

	if status >= http.StatusInternalServerError {
		log.Error("request failed", "err", err)
	} else {
		log.Debug("request rejected", "status", status, "err", err)
	}

	// RFC 6750-compliant challenge for bearer auth.
	if status == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	WriteJSON(w, status, ErrorBody{Error: errx.Message(err)})
}
