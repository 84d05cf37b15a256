// Package authflow drives the interactive logins: the browser
// Authorization Code + PKCE redirect flow and the device code flow used by
// the CLI. The Controller also resolves identities for the HTTP middleware.
package authflow

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kiloOhm/kilo-zone/pkg/cache"
	"github.com/kiloOhm/kilo-zone/pkg/idp"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
	"github.com/kiloOhm/kilo-zone/pkg/session"
)

// VerifierTTL bounds how long a user may take at the provider.
const VerifierTTL = 10 * time.Minute

// VerifierCacheKey is where the PKCE verifier for nonce is kept.
func VerifierCacheKey(nonce string) string { return "code_verifier:" + nonce }

type Config struct {
	IdP      *idp.Client
	Verifier *jwtx.Verifier
	Sessions *session.Manager
	Cache    cache.Cache

	// Hostname is the public host of this service. Post-login redirects
	// must stay on it.
	Hostname string
	Dev      bool
}

type Controller struct {
	idp       *idp.Client
	verifier  *jwtx.Verifier
	sessions  *session.Manager
	verifiers cache.Typed[string]
	baseURL   string
}

func New(cfg Config) *Controller {
	scheme := "https"
	if cfg.Dev {
		scheme = "http"
	}
	return &Controller{
		idp:       cfg.IdP,
		verifier:  cfg.Verifier,
		sessions:  cfg.Sessions,
		verifiers: cache.NewTyped[string](cfg.Cache),
		baseURL:   scheme + "://" + strings.TrimSuffix(cfg.Hostname, "/"),
	}
}

// BaseURL is the public origin, e.g. https://kilo.zone.
func (c *Controller) BaseURL() string { return c.baseURL }

// RequestURL rebuilds the public URL of r for use as a post-login target.
func (c *Controller) RequestURL(r *http.Request) string {
	return c.baseURL + r.URL.RequestURI()
}

// VerifyAccessToken checks a bearer token presented by a client.
func (c *Controller) VerifyAccessToken(ctx context.Context, raw string) (*jwtx.AccessToken, error) {
	return c.verifier.VerifyAccessToken(ctx, raw)
}

// Session reads the session cookie. A missing cookie is (nil, nil).
func (c *Controller) Session(r *http.Request, cookie string) (*session.Cookie, error) {
	return c.sessions.Get(r, cookie)
}

// ClearSession expires the session cookie.
func (c *Controller) ClearSession(w http.ResponseWriter, cookie string) {
	c.sessions.Clear(w, cookie)
}

// Refresh exchanges a session refresh token for a fresh, verified access
// token. One attempt only; any failure is reported as 401 so the caller
// restarts the interactive flow.
func (c *Controller) Refresh(ctx context.Context, refreshToken string) (*jwtx.AccessToken, error) {
	tok, err := c.idp.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, unauthorized("Session expired", err)
	}
	return c.verifier.VerifyAccessToken(ctx, tok.AccessToken)
}
