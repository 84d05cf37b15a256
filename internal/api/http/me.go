package http

import (
	"net/http"

	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/httpx"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
)

// HandleMe godoc
//
//	@Summary		Current caller
//	@Description	Returns the caller's identity and granted scopes.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	MeResponse
//	@Failure		401	{object}	httpx.ErrorBody	"Invalid or missing access token"
//	@Router			/v1/me [get].
func HandleMe(w http.ResponseWriter, r *http.Request) error {
	auth, ok := httpx.AuthFromContext(r.Context())
	if !ok {
		return errx.Unauthorized("")
	}

	resp := MeResponse{
		Subject: auth.Subject(),
		Scopes:  jwtx.ScopeStrings(auth.Scopes()),
	}
	if resp.Scopes == nil {
		resp.Scopes = []string{}
	}
	if id := auth.IDToken; id != nil {
		resp.DisplayName = id.DisplayName()
		resp.Email = id.Email
		resp.EmailVerified = id.EmailVerified
		resp.Nickname = id.Nickname
		resp.Name = id.Name
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
	return nil
}
