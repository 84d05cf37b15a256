// Package jwtx verifies identity-provider credentials: RS256 JWTs checked
// against the provider's JWKS, and opaque tokens checked by introspection.
package jwtx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kiloOhm/kilo-zone/pkg/cryptox"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

// TokenKind tells callers which path verified a token.
type TokenKind string

const (
	TokenJWT    TokenKind = "jwt"
	TokenOpaque TokenKind = "opaque"
)

// Result is a verified claim set tagged with its origin.
type Result struct {
	Kind   TokenKind
	Claims map[string]any
}

// Introspector validates opaque tokens with the identity provider
// (RFC 7662). It returns the raw introspection response.
type Introspector interface {
	Introspect(ctx context.Context, token string) (map[string]any, error)
}

// Verifier validates tokens issued by a single identity provider.
type Verifier struct {
	keys        *KeySource
	issuer      string
	audiences   []string
	idAudiences []string
	intro       Introspector
	leeway    time.Duration
	now       func() time.Time
}

type Option func(*Verifier)

func WithIntrospector(i Introspector) Option {
	return func(v *Verifier) { v.intro = i }
}

// WithIDTokenAudiences sets the audiences accepted by VerifyIDToken,
// usually the client id. Without it ID tokens are held to the access
// token audiences.
func WithIDTokenAudiences(aud ...string) Option {
	return func(v *Verifier) { v.idAudiences = nonEmpty(aud) }
}

// WithLeeway tolerates clock skew on exp/nbf/iat.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) { v.leeway = d }
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier accepts tokens from issuer (with or without a trailing slash)
// whose audience contains any of audiences. Empty audiences disables the
// audience check for access tokens.
func NewVerifier(keys *KeySource, issuer string, audiences []string, opts ...Option) *Verifier {
	v := &Verifier{
		keys:      keys,
		issuer:    strings.TrimSuffix(issuer, "/"),
		audiences: nonEmpty(audiences),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.idAudiences == nil {
		v.idAudiences = v.audiences
	}
	return v
}

// Verify checks raw against the access token audiences and returns its
// claims. Tokens that do not decode as a JWT are treated as opaque and
// introspected.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Result, error) {
	return v.verify(ctx, raw, v.audiences)
}

func (v *Verifier) verify(ctx context.Context, raw string, audiences []string) (*Result, error) {
	log := slogx.FromContext(ctx).With("token", cryptox.FingerprintToken(raw))

	// 1. Structural decode; failure means opaque
	claims := jwt.MapClaims{}
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		log.Debug("token is not a jwt, introspecting")
		return v.introspect(ctx, raw)
	}

	// 2. Header
	if typ, _ := unverified.Header["typ"].(string); typ != "JWT" {
		return nil, newError(KindInvalidType, "typ "+typ)
	}
	if alg, _ := unverified.Header["alg"].(string); alg != jwt.SigningMethodRS256.Alg() {
		return nil, newError(KindUnsupportedAlgorithm, "alg "+alg)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, newError(KindMalformed, "missing kid")
	}

	// 3. Issuer and audience, before any network call
	iss, _ := claims["iss"].(string)
	if !v.issuerMatches(iss) {
		return nil, newError(KindInvalidIssuer, iss)
	}
	if err := checkAudience(claims, audiences); err != nil {
		return nil, err
	}

	// 4. Signing key for (iss, kid)
	pub, err := v.keys.Key(ctx, iss, kid)
	if err != nil {
		return nil, err
	}

	// 5. Signature and time claims
	verified := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if _, err := parser.ParseWithClaims(raw, verified, func(*jwt.Token) (any, error) { return pub, nil }); err != nil {
		return nil, mapParseError(err)
	}

	return &Result{Kind: TokenJWT, Claims: verified}, nil
}

// VerifyAccessToken verifies raw and decodes it as an access token.
func (v *Verifier) VerifyAccessToken(ctx context.Context, raw string) (*AccessToken, error) {
	res, err := v.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	at, err := res.AccessToken()
	if err != nil {
		return nil, err
	}
	at.Raw = raw
	return at, nil
}

// VerifyIDToken verifies raw against the ID token audiences and decodes it
// as an identity token.
func (v *Verifier) VerifyIDToken(ctx context.Context, raw string) (*IDToken, error) {
	res, err := v.verify(ctx, raw, v.idAudiences)
	if err != nil {
		return nil, err
	}
	return res.IDToken()
}

func (v *Verifier) introspect(ctx context.Context, raw string) (*Result, error) {
	if v.intro == nil {
		return nil, ErrNoIntrospection
	}
	payload, err := v.intro.Introspect(ctx, raw)
	if err != nil {
		return nil, err
	}
	if active, _ := payload["active"].(bool); !active {
		return nil, newError(KindInactive, "")
	}
	return &Result{Kind: TokenOpaque, Claims: payload}, nil
}

func (v *Verifier) issuerMatches(iss string) bool {
	return iss == v.issuer || iss == v.issuer+"/"
}

func checkAudience(claims jwt.MapClaims, audiences []string) error {
	if len(audiences) == 0 {
		return nil
	}
	aud, err := claims.GetAudience()
	if err != nil {
		return newError(KindInvalidAudience, err.Error())
	}
	if !Audience(aud).ContainsAny(audiences) {
		return newError(KindInvalidAudience, strings.Join(aud, " "))
	}
	return nil
}

// mapParseError turns jwt library failures into the closed Kind set.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return newError(KindExpired, err.Error())
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return newError(KindNotYetValid, err.Error())
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return newError(KindIssuedInFuture, err.Error())
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return newError(KindInvalidSignature, err.Error())
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return newError(KindUnsupportedAlgorithm, err.Error())
	default:
		return newError(KindMalformed, err.Error())
	}
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
