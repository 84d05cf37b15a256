package authflow

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/kiloOhm/kilo-zone/pkg/cryptox"
	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

// LoginRequest describes where a browser login should land.
type LoginRequest struct {
	// ReturnURL is where the callback sends the browser. Empty answers the
	// callback with a plain acknowledgement.
	ReturnURL string
	// Cookie is the session cookie to write. Empty skips the session.
	Cookie string
	// Scopes are requested on top of the default OIDC scopes.
	Scopes []jwtx.Scope
}

// state is round-tripped through the provider as a query string.
type state struct {
	Redirect string
	Cookie   string
	Nonce    string
}

func (s state) encode() string {
	v := url.Values{}
	if s.Redirect != "" {
		v.Set("redirect", s.Redirect)
	}
	if s.Cookie != "" {
		v.Set("cookie", s.Cookie)
	}
	v.Set("nonce", s.Nonce)
	return v.Encode()
}

func parseState(raw string) (state, error) {
	v, err := url.ParseQuery(raw)
	if err != nil {
		return state{}, err
	}
	return state{Redirect: v.Get("redirect"), Cookie: v.Get("cookie"), Nonce: v.Get("nonce")}, nil
}

// Begin starts the Authorization Code + PKCE flow: it stores a fresh
// verifier under a fresh nonce and redirects to the provider.
func (c *Controller) Begin(w http.ResponseWriter, r *http.Request, req LoginRequest) error {
	ctx := r.Context()

	if req.ReturnURL != "" {
		target, ok := c.resolveRedirect(req.ReturnURL)
		if !ok {
			return errx.BadRequest("Invalid redirect URL")
		}
		req.ReturnURL = target
	}

	// 1. PKCE pair
	verifier, err := cryptox.GenerateCodeVerifier()
	if err != nil {
		return fmt.Errorf("authflow: code verifier: %w", err)
	}
	challenge := cryptox.GenerateCodeChallenge(verifier)

	// 2. Nonce binding the callback to the stored verifier
	nonce, err := cryptox.NewNonce()
	if err != nil {
		return fmt.Errorf("authflow: nonce: %w", err)
	}
	if err := c.verifiers.Set(ctx, VerifierCacheKey(nonce), verifier, VerifierTTL); err != nil {
		return fmt.Errorf("authflow: store verifier: %w", err)
	}

	// 3. Redirect to the provider
	st := state{Redirect: req.ReturnURL, Cookie: req.Cookie, Nonce: nonce}
	scopes := jwtx.UnionScopes(req.Scopes, jwtx.DefaultScopes)

	slogx.FromContext(ctx).Debug("starting browser login", "nonce", cryptox.FingerprintToken(nonce))
	http.Redirect(w, r, c.idp.AuthCodeURL(st.encode(), scopes, challenge), http.StatusFound)
	return nil
}

// resolveRedirect accepts absolute URLs on our own origin and site-relative
// paths, returning the absolute form.
func (c *Controller) resolveRedirect(raw string) (string, bool) {
	if strings.ContainsAny(raw, "\r\n\\") {
		return "", false
	}

	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		// Reject scheme-relative "//evil.example" and bare "evil.example".
		if u.Host != "" || !strings.HasPrefix(u.Path, "/") {
			return "", false
		}
		u = base.ResolveReference(u)
	}

	if u.Scheme != base.Scheme || u.Host != base.Host || u.User != nil {
		return "", false
	}
	if u.Path == "" {
		u.Path = "/"
	}
	if !strings.HasPrefix(path.Clean(u.Path), "/") {
		return "", false
	}
	return u.String(), true
}
