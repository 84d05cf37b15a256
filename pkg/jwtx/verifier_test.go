package jwtx_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kiloOhm/kilo-zone/pkg/cache"
	"github.com/kiloOhm/kilo-zone/pkg/cache/drivers/memory"
	"github.com/kiloOhm/kilo-zone/pkg/cache/drivers/redis"
	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/idp"
	"github.com/kiloOhm/kilo-zone/pkg/idp/idptest"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
)

type fixture struct {
	idp      *idptest.Server
	cache    cache.Cache
	verifier *jwtx.Verifier
}

func newFixture(t *testing.T, c cache.Cache) *fixture {
	t.Helper()
	srv := idptest.New(t)
	if c == nil {
		c = memory.New(time.Minute)
	}
	client := idp.New(idp.Config{
		BaseURL:      srv.URL,
		ClientID:     idptest.ClientID,
		ClientSecret: idptest.ClientSecret,
		Audience:     idptest.Audience,
	})
	v := jwtx.NewVerifier(
		jwtx.NewKeySource(c, srv.Client()),
		srv.URL,
		[]string{idptest.Audience},
		jwtx.WithIDTokenAudiences(idptest.ClientID),
		jwtx.WithIntrospector(client),
	)
	return &fixture{idp: srv, cache: c, verifier: v}
}

func TestVerifyAccessToken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	raw := f.idp.AccessToken(t, idptest.DefaultUser, time.Hour)
	at, err := f.verifier.VerifyAccessToken(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, idptest.DefaultUser.Subject, at.Subject)
	require.Equal(t, []jwtx.Scope{jwtx.ScopeUsePages}, at.Scopes())
	require.Equal(t, raw, at.Raw)

	res, err := f.verifier.Verify(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, jwtx.TokenJWT, res.Kind)
}

func TestVerifyIDToken(t *testing.T) {
	f := newFixture(t, nil)
	u := idptest.DefaultUser
	u.Nickname = ""
	u.Name = "Ada Lovelace"

	id, err := f.verifier.VerifyIDToken(context.Background(), f.idp.IDToken(t, u, time.Hour))
	require.NoError(t, err)
	require.Equal(t, u.Email, id.Email)
	require.True(t, id.EmailVerified)
	require.Equal(t, "Ada Lovelace", id.DisplayName())
}

func TestTokenKindsDoNotCross(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	t.Run("id token as access token", func(t *testing.T) {
		_, err := f.verifier.VerifyAccessToken(ctx, f.idp.IDToken(t, idptest.DefaultUser, time.Hour))
		require.ErrorIs(t, err, jwtx.ErrInvalidAudience)
		require.Equal(t, http.StatusUnauthorized, errx.Status(err))
	})

	t.Run("access token as id token", func(t *testing.T) {
		_, err := f.verifier.VerifyIDToken(ctx, f.idp.AccessToken(t, idptest.DefaultUser, time.Hour))
		require.ErrorIs(t, err, jwtx.ErrInvalidAudience)
	})

	t.Run("access token without scope", func(t *testing.T) {
		raw := f.idp.Sign(t, jwt.MapClaims{
			"iss": f.idp.Issuer(), "sub": "auth0|user-1", "aud": idptest.Audience,
			"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
		}, nil)
		_, err := f.verifier.VerifyAccessToken(ctx, raw)
		require.ErrorIs(t, err, jwtx.ErrInvalidClaims)
	})

	t.Run("single audience verifier", func(t *testing.T) {
		// Even when both token kinds share an audience, an ID token has no scope.
		v := jwtx.NewVerifier(jwtx.NewKeySource(memory.New(time.Minute), f.idp.Client()), f.idp.URL, nil)
		_, err := v.VerifyAccessToken(ctx, f.idp.IDToken(t, idptest.DefaultUser, time.Hour))
		require.ErrorIs(t, err, jwtx.ErrInvalidClaims)
	})
}

func TestJWKSFetchedOncePerKey(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redis.New(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	f := newFixture(t, c)
	ctx := context.Background()

	for range 5 {
		_, err := f.verifier.Verify(ctx, f.idp.AccessToken(t, idptest.DefaultUser, time.Hour))
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, f.idp.JWKSFetches())

	cacheKey := jwtx.KeyCacheKey(f.idp.Issuer(), idptest.KeyID)
	require.True(t, mr.Exists(cacheKey))
	require.Equal(t, jwtx.DefaultKeyTTL, mr.TTL(cacheKey))

	mr.FastForward(jwtx.DefaultKeyTTL + time.Second)

	_, err := f.verifier.Verify(ctx, f.idp.AccessToken(t, idptest.DefaultUser, time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, f.idp.JWKSFetches())
}

func TestKeyRotationUsesNewKid(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.verifier.Verify(ctx, f.idp.AccessToken(t, idptest.DefaultUser, time.Hour))
	require.NoError(t, err)

	f.idp.Rotate(t, "k2")
	_, err = f.verifier.Verify(ctx, f.idp.AccessToken(t, idptest.DefaultUser, time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, f.idp.JWKSFetches())

	_, ok, err := f.cache.Get(ctx, jwtx.KeyCacheKey(f.idp.Issuer(), "k2"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUnknownKidIsNotACredentialError(t *testing.T) {
	f := newFixture(t, nil)

	raw := f.idp.Sign(t, jwt.MapClaims{
		"iss": f.idp.Issuer(), "sub": "x", "aud": idptest.Audience,
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	}, map[string]any{"kid": "does-not-exist"})

	_, err := f.verifier.Verify(context.Background(), raw)
	require.ErrorIs(t, err, jwtx.ErrKeyNotFound)
	require.Equal(t, http.StatusInternalServerError, errx.Status(err))
}

func TestVerifyRejections(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now()

	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":   f.idp.Issuer(),
			"sub":   "auth0|user-1",
			"aud":   []string{idptest.Audience},
			"iat":   now.Unix(),
			"exp":   now.Add(time.Hour).Unix(),
			"scope": "openid",
		}
	}
	with := func(k string, v any) jwt.MapClaims {
		c := base()
		c[k] = v
		return c
	}

	tests := []struct {
		name    string
		claims  jwt.MapClaims
		header  map[string]any
		want    error
		message string
	}{
		{"expired", with("exp", now.Add(-time.Minute).Unix()), nil, jwtx.ErrExpired, "Token expired"},
		{"not yet valid", with("nbf", now.Add(time.Hour).Unix()), nil, jwtx.ErrNotYetValid, "Token not before"},
		{"issued in future", with("iat", now.Add(time.Hour).Unix()), nil, jwtx.ErrIssuedInFuture, "Token issued at"},
		{"wrong issuer", with("iss", "https://evil.example/"), nil, jwtx.ErrInvalidIssuer, "Invalid issuer"},
		{"wrong audience array", with("aud", []string{"someone-else"}), nil, jwtx.ErrInvalidAudience, "Invalid audience"},
		{"wrong audience string", with("aud", "someone-else"), nil, jwtx.ErrInvalidAudience, "Invalid audience"},
		{"wrong typ", base(), map[string]any{"typ": "at+jwt"}, jwtx.ErrInvalidType, "Invalid token type"},
		{"missing kid", base(), map[string]any{"kid": ""}, jwtx.ErrMalformed, "Token invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.verifier.Verify(context.Background(), f.idp.Sign(t, tt.claims, tt.header))
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, http.StatusUnauthorized, errx.Status(err))
			require.Equal(t, tt.message, errx.Message(err))
		})
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	f := newFixture(t, nil)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": f.idp.Issuer(), "sub": "x", "aud": idptest.Audience,
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = idptest.KeyID
	raw, err := tok.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), raw)
	require.ErrorIs(t, err, jwtx.ErrUnsupportedAlgorithm)
	require.Zero(t, f.idp.JWKSFetches())
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	raw := f.idp.AccessToken(t, idptest.DefaultUser, time.Hour)
	tampered := raw[:len(raw)-4] + "AAAA"
	if tampered == raw {
		tampered = raw[:len(raw)-4] + "BBBB"
	}

	_, err := f.verifier.Verify(ctx, tampered)
	require.ErrorIs(t, err, jwtx.ErrInvalidSignature)
}

func TestIssuerWithoutTrailingSlash(t *testing.T) {
	f := newFixture(t, nil)
	raw := f.idp.Sign(t, jwt.MapClaims{
		"iss": f.idp.URL, "sub": "x", "aud": idptest.Audience, "scope": "",
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	}, nil)

	_, err := f.verifier.Verify(context.Background(), raw)
	require.NoError(t, err)
}

func TestOpaqueTokens(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.idp.AddOpaqueToken("opaque-active", map[string]any{
		"active": true,
		"iss":    f.idp.Issuer(),
		"sub":    "auth0|machine",
		"aud":    idptest.Audience,
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scope":  "use:pages",
	})

	t.Run("active", func(t *testing.T) {
		res, err := f.verifier.Verify(ctx, "opaque-active")
		require.NoError(t, err)
		require.Equal(t, jwtx.TokenOpaque, res.Kind)

		at, err := res.AccessToken()
		require.NoError(t, err)
		require.Equal(t, "auth0|machine", at.Subject)
		require.Equal(t, []jwtx.Scope{jwtx.ScopeUsePages}, at.Scopes())
	})

	t.Run("inactive", func(t *testing.T) {
		_, err := f.verifier.Verify(ctx, "opaque-unknown")
		require.ErrorIs(t, err, jwtx.ErrInactive)
		require.Equal(t, "Token not active", errx.Message(err))
	})

	require.EqualValues(t, 2, f.idp.Introspections())
	require.Zero(t, f.idp.JWKSFetches())
}

func TestOpaqueWithoutIntrospector(t *testing.T) {
	v := jwtx.NewVerifier(jwtx.NewKeySource(memory.New(time.Minute), nil), "https://idp.example", nil)
	_, err := v.Verify(context.Background(), "not-a-jwt")
	require.True(t, errors.Is(err, jwtx.ErrNoIntrospection))
}

func TestClaimsValidation(t *testing.T) {
	f := newFixture(t, nil)
	raw := f.idp.Sign(t, jwt.MapClaims{
		"iss": f.idp.Issuer(), "aud": idptest.ClientID,
		"iat": time.Now().Unix(), "exp": time.Now().Add(time.Hour).Unix(),
	}, nil)

	_, err := f.verifier.VerifyIDToken(context.Background(), raw)
	require.ErrorIs(t, err, jwtx.ErrInvalidClaims)
}
