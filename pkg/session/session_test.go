package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiloOhm/kilo-zone/pkg/cryptox"
	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/idp"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
	"github.com/kiloOhm/kilo-zone/pkg/session"
)

const (
	secret     = "session-secret-for-tests"
	cookieName = "kz_session"
)

type stubVerifier struct {
	id  *jwtx.IDToken
	err error
}

func (s stubVerifier) VerifyIDToken(context.Context, string) (*jwtx.IDToken, error) {
	return s.id, s.err
}

var ada = &jwtx.IDToken{
	Issuer:        "https://idp.example/",
	Subject:       "auth0|ada",
	Audience:      jwtx.Audience{"client"},
	Expiry:        time.Now().Add(time.Hour).Unix(),
	IssuedAt:      time.Now().Unix(),
	Email:         "ada@example.com",
	EmailVerified: true,
	Nickname:      "ada",
}

func setCookie(t *testing.T, m *session.Manager) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	_, err := m.Set(context.Background(), rec, &idp.TokenResponse{
		AccessToken:  "at",
		IDToken:      "idt",
		RefreshToken: "rt-1",
		ExpiresIn:    3600,
	}, cookieName)
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func requestWith(c *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if c != nil {
		r.AddCookie(c)
	}
	return r
}

func TestRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := session.NewManager(secret, stubVerifier{id: ada}, session.WithClock(func() time.Time { return now }))

	c := setCookie(t, m)
	require.Equal(t, cookieName, c.Name)
	require.True(t, c.HttpOnly)
	require.True(t, c.Secure)
	require.Equal(t, http.SameSiteStrictMode, c.SameSite)
	require.Equal(t, "/", c.Path)
	require.Equal(t, now.Add(time.Hour).UTC(), c.Expires.UTC())
	require.NotContains(t, c.Value, "ada@example.com", "payload must be encrypted")

	got, err := m.Get(requestWith(c), cookieName)
	require.NoError(t, err)
	require.Equal(t, "auth0|ada", got.IDToken.Subject)
	require.Equal(t, "rt-1", got.RefreshToken)
}

func TestInsecureInDev(t *testing.T) {
	m := session.NewManager(secret, stubVerifier{id: ada}, session.WithInsecure())
	require.False(t, setCookie(t, m).Secure)
}

func TestMissingCookieIsNoSession(t *testing.T) {
	m := session.NewManager(secret, stubVerifier{id: ada})
	got, err := m.Get(requestWith(nil), cookieName)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestTamperedCookieFailsLoudly(t *testing.T) {
	m := session.NewManager(secret, stubVerifier{id: ada})
	good := setCookie(t, m)
	value, sig, ok := strings.Cut(good.Value, ".")
	require.True(t, ok)

	forged, err := cryptox.EncryptString(`{"idToken":{"iss":"x","sub":"mallory","exp":1,"iat":1,"email":"m@x"}}`, secret)
	require.NoError(t, err)

	tests := map[string]string{
		"bad signature":       value + ".AAAA",
		"unsigned":            value,
		"swapped payload":     forged + "." + sig,
		"signed with garbage": "bm90LWNpcGhlcnRleHQ=." + sig,
	}

	for name, v := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := m.Get(requestWith(&http.Cookie{Name: cookieName, Value: v}), cookieName)
			require.Nil(t, got)
			require.ErrorIs(t, err, session.ErrInvalidSession)
			require.Equal(t, http.StatusUnauthorized, errx.Status(err))
		})
	}
}

func TestOtherSecretCannotRead(t *testing.T) {
	c := setCookie(t, session.NewManager(secret, stubVerifier{id: ada}))
	other := session.NewManager("a-different-secret", stubVerifier{id: ada})

	_, err := other.Get(requestWith(c), cookieName)
	require.ErrorIs(t, err, session.ErrInvalidSession)
}

func TestSetRejectsUnverifiedIDToken(t *testing.T) {
	m := session.NewManager(secret, stubVerifier{err: jwtx.ErrExpired})
	rec := httptest.NewRecorder()

	_, err := m.Set(context.Background(), rec, &idp.TokenResponse{IDToken: "idt", ExpiresIn: 60}, cookieName)
	require.ErrorIs(t, err, jwtx.ErrExpired)
	require.Empty(t, rec.Result().Cookies())
}

func TestClear(t *testing.T) {
	m := session.NewManager(secret, stubVerifier{id: ada})
	rec := httptest.NewRecorder()
	m.Clear(rec, cookieName)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, cookieName, cookies[0].Name)
	require.Empty(t, cookies[0].Value)
	require.Negative(t, cookies[0].MaxAge)
}
