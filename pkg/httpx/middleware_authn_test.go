package httpx_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiloOhm/kilo-zone/pkg/authflow"
	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/httpx"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
	"github.com/kiloOhm/kilo-zone/pkg/session"
)

const cookieName = "kz_session"

// fakeAuth resolves fixed tokens and records what the middleware asked for.
type fakeAuth struct {
	tokens     map[string]*jwtx.AccessToken
	session    *session.Cookie
	sessionErr error
	refreshed  *jwtx.AccessToken

	refreshCalls int
	cleared      bool
	begun        *authflow.LoginRequest
}

func (f *fakeAuth) VerifyAccessToken(_ context.Context, raw string) (*jwtx.AccessToken, error) {
	if at, ok := f.tokens[raw]; ok {
		return at, nil
	}
	return nil, jwtx.ErrInvalidSignature
}

func (f *fakeAuth) Session(*http.Request, string) (*session.Cookie, error) {
	return f.session, f.sessionErr
}

func (f *fakeAuth) ClearSession(http.ResponseWriter, string) { f.cleared = true }

func (f *fakeAuth) Refresh(context.Context, string) (*jwtx.AccessToken, error) {
	f.refreshCalls++
	if f.refreshed == nil {
		return nil, errx.Unauthorized("Session expired")
	}
	return f.refreshed, nil
}

func (f *fakeAuth) Begin(w http.ResponseWriter, r *http.Request, req authflow.LoginRequest) error {
	f.begun = &req
	http.Redirect(w, r, "https://idp.example/authorize", http.StatusFound)
	return nil
}

func (f *fakeAuth) RequestURL(r *http.Request) string {
	return "https://kilo.test" + r.URL.RequestURI()
}

func token(sub, scope string) *jwtx.AccessToken {
	return &jwtx.AccessToken{Subject: sub, Scope: scope}
}

// echo reports the resolved subject.
var echo = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	sub := "anonymous"
	if a, ok := httpx.AuthFromContext(r.Context()); ok {
		sub = a.Subject()
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"sub": sub})
})

func serve(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestAuthenticateScopes(t *testing.T) {
	fa := &fakeAuth{tokens: map[string]*jwtx.AccessToken{
		"without": token("u1", "openid profile"),
		"with":    token("u2", "openid use:pages"),
	}}
	h := httpx.Chain(echo, httpx.Authenticate(fa, httpx.AuthOptions{
		RequiredScopes: []jwtx.Scope{jwtx.ScopeUsePages},
	}))

	rec := serve(h, "/v1/pages", map[string]string{"Authorization": "Bearer without"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Missing scopes: use:pages", errorOf(t, rec))
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")

	rec = serve(h, "/v1/pages", map[string]string{"Authorization": "Bearer with"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"sub":"u2"}`, rec.Body.String())
}

func TestAuthenticateOnFail(t *testing.T) {
	tests := []struct {
		name     string
		onFail   httpx.OnFail
		wantCode int
	}{
		{"throw", httpx.OnFailThrow, http.StatusUnauthorized},
		{"redirect", httpx.OnFailRedirect, http.StatusFound},
		{"next", httpx.OnFailNext, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := &fakeAuth{}
			h := httpx.Chain(echo, httpx.Authenticate(fa, httpx.AuthOptions{
				OnFail:        tt.onFail,
				Cookie:        cookieName,
				RequestScopes: []jwtx.Scope{jwtx.ScopeUsePages},
			}))

			rec := serve(h, "/dashboard?tab=1", nil)
			require.Equal(t, tt.wantCode, rec.Code)

			if tt.onFail == httpx.OnFailRedirect {
				require.NotNil(t, fa.begun)
				require.Equal(t, "https://kilo.test/dashboard?tab=1", fa.begun.ReturnURL)
				require.Equal(t, cookieName, fa.begun.Cookie)
				require.Equal(t, []jwtx.Scope{jwtx.ScopeUsePages}, fa.begun.Scopes)
			}
			if tt.onFail == httpx.OnFailThrow {
				require.Equal(t, `Bearer error="invalid_token"`, rec.Header().Get("WWW-Authenticate"))
			}
			if tt.onFail == httpx.OnFailNext {
				require.JSONEq(t, `{"sub":"anonymous"}`, rec.Body.String())
			}
		})
	}
}

func TestAuthenticateRequiredScopesWithoutToken(t *testing.T) {
	h := httpx.Chain(echo, httpx.Authenticate(&fakeAuth{}, httpx.AuthOptions{
		OnFail:         httpx.OnFailNext,
		RequiredScopes: []jwtx.Scope{jwtx.ScopeUsePages},
	}))
	require.Equal(t, http.StatusUnauthorized, serve(h, "/", nil).Code)
}

func TestAuthenticateInvalidAuthorizationType(t *testing.T) {
	h := httpx.Chain(echo, httpx.Authenticate(&fakeAuth{}, httpx.AuthOptions{OnFail: httpx.OnFailNext}))

	rec := serve(h, "/", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid Authorization type", errorOf(t, rec))
}

func TestAuthenticateBadBearerFails(t *testing.T) {
	h := httpx.Chain(echo, httpx.Authenticate(&fakeAuth{}, httpx.AuthOptions{OnFail: httpx.OnFailNext}))

	rec := serve(h, "/", map[string]string{"Authorization": "Bearer forged"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Token signature mismatched", errorOf(t, rec))
}

func TestAuthenticateSessionRefresh(t *testing.T) {
	fa := &fakeAuth{
		session: &session.Cookie{
			IDToken:      jwtx.IDToken{Subject: "u3", Email: "u3@example.com"},
			RefreshToken: "rt",
		},
		refreshed: token("u3", "openid use:pages"),
	}
	var got *httpx.Auth
	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = httpx.AuthFromContext(r.Context())
	}), httpx.Authenticate(fa, httpx.AuthOptions{Cookie: cookieName}))

	rec := serve(h, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, fa.refreshCalls)
	require.Equal(t, "u3@example.com", got.IDToken.Email)
	require.Equal(t, "u3", got.AccessToken.Subject)
}

func TestAuthenticateFailedRefresh(t *testing.T) {
	newAuth := func() *fakeAuth {
		return &fakeAuth{session: &session.Cookie{IDToken: jwtx.IDToken{Subject: "u"}, RefreshToken: "revoked"}}
	}

	fa := newAuth()
	rec := serve(httpx.Chain(echo, httpx.Authenticate(fa, httpx.AuthOptions{Cookie: cookieName})), "/", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Session expired", errorOf(t, rec))
	require.True(t, fa.cleared)

	fa = newAuth()
	rec = serve(httpx.Chain(echo, httpx.Authenticate(fa, httpx.AuthOptions{
		Cookie: cookieName,
		OnFail: httpx.OnFailRedirect,
	})), "/", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.NotNil(t, fa.begun)
}

func TestAuthenticateTamperedSessionFailsUnderEveryPolicy(t *testing.T) {
	for _, onFail := range []httpx.OnFail{httpx.OnFailThrow, httpx.OnFailRedirect, httpx.OnFailNext} {
		fa := &fakeAuth{sessionErr: errx.Unauthorized("Invalid session").Wrap(session.ErrInvalidSession)}
		h := httpx.Chain(echo, httpx.Authenticate(fa, httpx.AuthOptions{Cookie: cookieName, OnFail: onFail}))

		rec := serve(h, "/", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Invalid session", errorOf(t, rec))
		require.True(t, fa.cleared)
		require.Nil(t, fa.begun)
	}
}

func TestAuthenticateExclusions(t *testing.T) {
	h := httpx.Chain(echo, httpx.Authenticate(&fakeAuth{}, httpx.AuthOptions{
		Exclude: []string{"/public", "/assets/*"},
	}))

	for path, want := range map[string]int{
		"/auth/callback":   http.StatusOK,
		"/public":          http.StatusOK,
		"/public/page":     http.StatusOK,
		"/assets/logo.svg": http.StatusOK,
		"/private":         http.StatusUnauthorized,
		"/pub":             http.StatusUnauthorized,
	} {
		require.Equal(t, want, serve(h, path, nil).Code, path)
	}
}

func TestAuthenticateReusesUpstreamIdentity(t *testing.T) {
	fa := &fakeAuth{tokens: map[string]*jwtx.AccessToken{"t": token("u4", "use:pages")}}
	soft := httpx.Authenticate(fa, httpx.AuthOptions{OnFail: httpx.OnFailNext})
	strict := httpx.Authenticate(&fakeAuth{}, httpx.AuthOptions{RequiredScopes: []jwtx.Scope{jwtx.ScopeUsePages}})

	rec := serve(httpx.Chain(echo, soft, strict), "/", map[string]string{"Authorization": "Bearer t"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"sub":"u4"}`, rec.Body.String())
}

func TestRequireScopes(t *testing.T) {
	fa := &fakeAuth{tokens: map[string]*jwtx.AccessToken{"t": token("u5", "openid")}}
	h := httpx.Chain(echo,
		httpx.Authenticate(fa, httpx.AuthOptions{}),
		httpx.RequireScopes(jwtx.ScopeUsePages),
	)

	rec := serve(h, "/", map[string]string{"Authorization": "Bearer t"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerFuncWritesErrors(t *testing.T) {
	h := httpx.HandlerFunc(func(http.ResponseWriter, *http.Request) error {
		return errors.New("database exploded")
	})
	rec := serve(h, "/", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "Internal Server Error", errorOf(t, rec))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}
