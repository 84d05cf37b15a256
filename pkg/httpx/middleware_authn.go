package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kiloOhm/kilo-zone/pkg/authflow"
	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
	"github.com/kiloOhm/kilo-zone/pkg/session"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

// Authenticator resolves identities. *authflow.Controller implements it.
type Authenticator interface {
	VerifyAccessToken(ctx context.Context, raw string) (*jwtx.AccessToken, error)
	Session(r *http.Request, cookie string) (*session.Cookie, error)
	ClearSession(w http.ResponseWriter, cookie string)
	Refresh(ctx context.Context, refreshToken string) (*jwtx.AccessToken, error)
	Begin(w http.ResponseWriter, r *http.Request, req authflow.LoginRequest) error
	RequestURL(r *http.Request) string
}

// OnFail selects what happens when no access token can be resolved.
type OnFail int

const (
	// OnFailThrow rejects the request with 401.
	OnFailThrow OnFail = iota
	// OnFailRedirect starts the browser login and returns to the request URL.
	OnFailRedirect
	// OnFailNext continues anonymously.
	OnFailNext
)

type AuthOptions struct {
	// RequestScopes are asked for when a login is started.
	RequestScopes []jwtx.Scope
	// RequiredScopes must all be granted to the access token.
	RequiredScopes []jwtx.Scope
	OnFail         OnFail
	// Exclude lists path patterns that skip authentication, see PathExcluded.
	// /auth/* is always excluded.
	Exclude []string
	// Cookie is the session cookie name. Empty ignores sessions.
	Cookie string
}

// Authenticate resolves the caller from a bearer token or the session
// cookie and attaches it to the request context.
func Authenticate(a Authenticator, opts AuthOptions) Middleware {
	exclude := append([]string{"/auth/*"}, opts.Exclude...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if PathExcluded(r.URL.Path, exclude) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			log := slogx.FromContext(ctx)

			auth, ok := AuthFromContext(ctx)
			if !ok || auth.AccessToken == nil {
				resolved, err := resolve(w, r, a, opts)
				if err != nil {
					if errors.Is(err, errRefreshFailed) && opts.OnFail == OnFailRedirect {
						beginLogin(w, r, a, opts)
						return
					}
					WriteError(w, r, err)
					return
				}
				auth = resolved
			}

			if auth.AccessToken == nil {
				switch opts.OnFail {
				case OnFailRedirect:
					beginLogin(w, r, a, opts)
					return
				case OnFailThrow:
					WriteError(w, r, errx.Unauthorized(""))
					return
				}
			}

			if len(opts.RequiredScopes) > 0 {
				if err := checkScopes(w, auth, opts.RequiredScopes); err != nil {
					WriteError(w, r, err)
					return
				}
			}

			if auth.AccessToken != nil {
				ctx = WithAuth(ctx, auth)
				ctx = slogx.With(ctx, "sub", auth.Subject())
				log.Debug("request authenticated", "sub", auth.Subject())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var errRefreshFailed = errors.New("httpx: session refresh failed")

// resolve reads the Authorization header, falling back to the session
// cookie. The returned Auth may carry no access token.
func resolve(w http.ResponseWriter, r *http.Request, a Authenticator, opts AuthOptions) (*Auth, error) {
	ctx := r.Context()
	auth := &Auth{}

	if header := r.Header.Get("Authorization"); header != "" {
		typ, raw, _ := strings.Cut(header, " ")
		if !strings.EqualFold(typ, "bearer") {
			return nil, errx.Unauthorized("Invalid Authorization type")
		}
		at, err := a.VerifyAccessToken(ctx, strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		auth.AccessToken = at
		return auth, nil
	}

	if opts.Cookie == "" {
		return auth, nil
	}

	sess, err := a.Session(r, opts.Cookie)
	if err != nil {
		a.ClearSession(w, opts.Cookie)
		return nil, err
	}
	if sess == nil {
		return auth, nil
	}

	id := sess.IDToken
	auth.IDToken = &id
	if sess.RefreshToken != "" {
		at, err := a.Refresh(ctx, sess.RefreshToken)
		if err != nil {
			a.ClearSession(w, opts.Cookie)
			return nil, errors.Join(errRefreshFailed, err)
		}
		auth.AccessToken = at
	}
	return auth, nil
}

func beginLogin(w http.ResponseWriter, r *http.Request, a Authenticator, opts AuthOptions) {
	err := a.Begin(w, r, authflow.LoginRequest{
		ReturnURL: a.RequestURL(r),
		Cookie:    opts.Cookie,
		Scopes:    jwtx.UnionScopes(opts.RequestScopes, opts.RequiredScopes),
	})
	if err != nil {
		WriteError(w, r, err)
	}
}
