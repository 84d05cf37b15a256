package http

import (
	"net/http"

	"github.com/kiloOhm/kilo-zone/pkg/authflow"
	"github.com/kiloOhm/kilo-zone/pkg/httpx"
)

type AuthHandler struct {
	Auth   *authflow.Controller
	Cookie string
}

// HandleLogin starts the browser login.
//
//	@Summary		Start browser login
//	@Description	Redirects to the identity provider using Authorization Code + PKCE. After the callback the browser lands on redirect, which must be on this host.
//	@Tags			Auth
//	@Param			redirect	query	string	false	"Return URL after login"
//	@Success		302
//	@Failure		400	{object}	httpx.ErrorBody	"Invalid redirect URL"
//	@Router			/auth/login [get].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) error {
	return h.Auth.Begin(w, r, authflow.LoginRequest{
		ReturnURL: r.URL.Query().Get("redirect"),
		Cookie:    h.Cookie,
	})
}

// HandleCallback completes the browser login.
//
//	@Summary		Login callback
//	@Description	Redeems the authorization code, sets the session cookie and redirects to the return URL.
//	@Description	Without a return URL it answers {"status":"authenticated"}.
//	@Tags			Auth
//	@Produce		json
//	@Param			code	query		string	true	"Authorization code"
//	@Param			state	query		string	true	"State issued by /auth/login"
//	@Success		200		{object}	StatusResponse
//	@Success		302
//	@Failure		400	{object}	httpx.ErrorBody	"Missing code, nonce or verifier"
//	@Failure		401	{object}	httpx.ErrorBody	"Code rejected by the provider"
//	@Router			/auth/callback [get].
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) error {
	return h.Auth.Callback(w, r)
}

// HandleLogout clears the session cookie.
//
//	@Summary	Logout
//	@Tags		Auth
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Router		/auth/logout [get].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) error {
	h.Auth.ClearSession(w, h.Cookie)
	httpx.WriteJSON(w, http.StatusOK, StatusResponse{Status: "logged_out"})
	return nil
}
