package httpx

import (
	"context"

	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
)

type ctxKey string

const (
	ctxKeyAuth      ctxKey = "auth"
	ctxKeyRateLimit ctxKey = "rate_limit"
)

// Auth is the identity resolved for a request. IDToken is only present for
// browser sessions.
type Auth struct {
	IDToken     *jwtx.IDToken
	AccessToken *jwtx.AccessToken
}

func (a *Auth) Subject() string {
	if a.AccessToken != nil {
		return a.AccessToken.Subject
	}
	if a.IDToken != nil {
		return a.IDToken.Subject
	}
	return ""
}

// Scopes are the non-default scopes granted to the access token.
func (a *Auth) Scopes() []jwtx.Scope {
	if a.AccessToken == nil {
		return nil
	}
	return a.AccessToken.Scopes()
}

func WithAuth(ctx context.Context, a *Auth) context.Context {
	return context.WithValue(ctx, ctxKeyAuth, a)
}

// AuthFromContext returns the identity attached by Authenticate.
func AuthFromContext(ctx context.Context) (*Auth, bool) {
	a, ok := ctx.Value(ctxKeyAuth).(*Auth)
	return a, ok && a != nil
}

func authenticated(ctx context.Context) bool {
	a, ok := AuthFromContext(ctx)
	return ok && a.AccessToken != nil
}
