// Package session stores the signed-in identity in an encrypted, signed
// browser cookie. The cookie never holds plaintext claims.
package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kiloOhm/kilo-zone/pkg/cryptox"
	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/idp"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

// ErrInvalidSession marks a cookie that exists but cannot be trusted.
// It is never collapsed into "no session".
var ErrInvalidSession = errors.New("session: invalid session cookie")

// Cookie is the decrypted session payload.
type Cookie struct {
	IDToken      jwtx.IDToken `json:"idToken"`
	RefreshToken string       `json:"refreshToken,omitempty"`
}

func (c *Cookie) Validate() error { return c.IDToken.Validate() }

// IDTokenVerifier is satisfied by *jwtx.Verifier.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (*jwtx.IDToken, error)
}

type Manager struct {
	secret   string
	verifier IDTokenVerifier
	secure   bool
	now      func() time.Time
}

type Option func(*Manager)

// WithInsecure drops the Secure attribute for plain-http local development.
func WithInsecure() Option {
	return func(m *Manager) { m.secure = false }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager encrypts and signs with secret, which must not be shared with
// any other signing purpose.
func NewManager(secret string, verifier IDTokenVerifier, opts ...Option) *Manager {
	m := &Manager{secret: secret, verifier: verifier, secure: true, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Set verifies the id_token in tok and writes it, with the refresh token,
// into cookie name. The cookie expires with the access token.
func (m *Manager) Set(ctx context.Context, w http.ResponseWriter, tok *idp.TokenResponse, name string) (*Cookie, error) {
	id, err := m.verifier.VerifyIDToken(ctx, tok.IDToken)
	if err != nil {
		return nil, err
	}

	payload := Cookie{IDToken: *id, RefreshToken: tok.RefreshToken}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("session: encode: %w", err)
	}

	enc, err := cryptox.EncryptString(string(raw), m.secret)
	if err != nil {
		return nil, fmt.Errorf("session: encrypt: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    enc + "." + m.sign(enc),
		Path:     "/",
		Expires:  tok.ExpiresAt(m.now()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})

	slogx.FromContext(ctx).Info("session established", "sub", id.Subject)
	return &payload, nil
}

// Get returns the session in cookie name, nil when there is none, and an
// ErrInvalidSession-wrapping 401 when the cookie is tampered or corrupt.
func (m *Manager) Get(r *http.Request, name string) (*Cookie, error) {
	c, err := r.Cookie(name)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, invalid(err)
	}

	i := strings.LastIndexByte(c.Value, '.')
	if i <= 0 {
		return nil, invalid(errors.New("unsigned value"))
	}
	value, sig := c.Value[:i], c.Value[i+1:]
	if !hmac.Equal([]byte(sig), []byte(m.sign(value))) {
		return nil, invalid(errors.New("signature mismatch"))
	}

	plain, err := cryptox.DecryptString(value, m.secret)
	if err != nil {
		return nil, invalid(err)
	}

	var out Cookie
	if err := json.Unmarshal([]byte(plain), &out); err != nil {
		return nil, invalid(err)
	}
	if err := out.Validate(); err != nil {
		return nil, invalid(err)
	}
	return &out, nil
}

// Clear expires cookie name.
func (m *Manager) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (m *Manager) sign(value string) string {
	mac := hmac.New(sha256.New, []byte(m.secret))
	mac.Write([]byte(value))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func invalid(cause error) error {
	return errx.Unauthorized("Invalid session").Wrap(fmt.Errorf("%w: %v", ErrInvalidSession, cause))
}
