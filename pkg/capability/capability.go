// Package capability mints and checks signed object URLs. A token grants
// exactly one operation on exactly one object key until it expires, with no
// reference to any user session.
package capability

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kiloOhm/kilo-zone/pkg/errx"
)

// Op is the operation a token authorizes.
type Op string

const (
	OpUpload   Op = "upload"
	OpDownload Op = "download"
)

func (o Op) Valid() bool { return o == OpUpload || o == OpDownload }

var (
	ErrKeyMismatch  = errors.New("capability: key mismatch")
	ErrTypeMismatch = errors.New("capability: type mismatch")
	ErrInvalidOp    = errors.New("capability: unknown operation")
)

// Claims is the signed payload: {key, type, exp}.
type Claims struct {
	Key  string `json:"key"`
	Type Op     `json:"type"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

type Option func(*Issuer)

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer signs with secret, which must be dedicated to object access.
// Links point at hostname over https, or http when dev is set.
func NewIssuer(secret, hostname string, dev bool, opts ...Option) *Issuer {
	scheme := "https"
	if dev {
		scheme = "http"
	}
	i := &Issuer{
		secret:  []byte(secret),
		baseURL: scheme + "://" + strings.TrimSuffix(hostname, "/"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue signs a token allowing op on key for ttl.
func (i *Issuer) Issue(key string, ttl time.Duration, op Op) (string, error) {
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidOp, op)
	}
	if key == "" {
		return "", errors.New("capability: empty key")
	}

	claims := Claims{
		Key:  key,
		Type: op,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(i.now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// SignedURL returns the object URL carrying a token for op.
func (i *Issuer) SignedURL(key string, ttl time.Duration, op Op) (string, error) {
	tok, err := i.Issue(key, ttl, op)
	if err != nil {
		return "", err
	}
	return i.baseURL + "/objects/" + url.PathEscape(key) + "?signature=" + url.QueryEscape(tok), nil
}

// Verify checks that token is genuine, unexpired and issued for exactly
// op on key.
func (i *Issuer) Verify(token, key string, op Op) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, errx.Unauthorized("Invalid signature").Wrap(err)
	}

	if claims.Key != key {
		return nil, errx.Forbidden("Invalid signature, key mismatch").Wrap(ErrKeyMismatch)
	}
	if claims.Type != op {
		return nil, errx.Forbidden("Invalid signature, type mismatch").Wrap(ErrTypeMismatch)
	}
	return &claims, nil
}
