// Package idptest runs an in-process identity provider for tests. It signs
// RS256 tokens, serves its JWKS and implements just enough of the token,
// device and introspection endpoints to drive the login flows.
package idptest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kiloOhm/kilo-zone/pkg/cryptox"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
)

const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
	Audience     = "https://api.kilo.test"
	KeyID        = "k1"
)

// User is the identity minted into tokens.
type User struct {
	Subject  string
	Email    string
	Nickname string
	Name     string
	Scope    string
}

var DefaultUser = User{
	Subject:  "auth0|user-1",
	Email:    "ada@example.com",
	Nickname: "ada",
	Scope:    "openid profile email offline_access use:pages",
}

type Server struct {
	*httptest.Server

	key *rsa.PrivateKey
	kid string

	mu       sync.Mutex
	codes    map[string]codeGrant
	refresh  map[string]User
	opaque   map[string]map[string]any
	device   map[string]*deviceGrant
	tokenTTL time.Duration

	devicePending     int
	deviceUnavailable int
	deviceDenied      bool
	deviceOmitRefresh bool
	lastDevice        string

	jwksFetches   atomic.Int64
	tokenRequests atomic.Int64
	introspects   atomic.Int64
}

type codeGrant struct {
	verifier string
	user     User
}

type deviceGrant struct {
	user    User
	pending int
	polls   int
	denied  bool
	// unavailable polls answer 503 before pending is consulted.
	unavailable int
	// omitRefresh answers without a refresh token once authorized.
	omitRefresh bool
}

// New starts a provider and closes it with t.
func New(t testing.TB) *Server {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("idptest: generate key: %v", err)
	}

	s := &Server{
		key:      key,
		kid:      KeyID,
		codes:    make(map[string]codeGrant),
		refresh:  make(map[string]User),
		opaque:   make(map[string]map[string]any),
		device:   make(map[string]*deviceGrant),
		tokenTTL: time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/jwks.json", s.handleJWKS)
	mux.HandleFunc("POST /oauth/token", s.handleToken)
	mux.HandleFunc("POST /oauth/device/code", s.handleDeviceCode)
	mux.HandleFunc("POST /oauth/introspect", s.handleIntrospect)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Issuer is the iss claim of every minted token.
func (s *Server) Issuer() string { return s.URL + "/" }

func (s *Server) JWKSFetches() int64 { return s.jwksFetches.Load() }
func (s *Server) TokenRequests() int64 { return s.tokenRequests.Load() }
func (s *Server) Introspections() int64 { return s.introspects.Load() }

// Rotate swaps the signing key and kid.
func (s *Server) Rotate(t testing.TB, kid string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("idptest: generate key: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key, s.kid = key, kid
}

// Sign signs arbitrary claims with the current key. Header fields can be
// overridden to build invalid tokens.
func (s *Server) Sign(t testing.TB, claims jwt.MapClaims, header map[string]any) string {
	t.Helper()
	s.mu.Lock()
	key, kid := s.key, s.kid
	s.mu.Unlock()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	for k, v := range header {
		tok.Header[k] = v
	}
	raw, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("idptest: sign: %v", err)
	}
	return raw
}

// AccessToken mints an access token for u valid for ttl.
func (s *Server) AccessToken(t testing.TB, u User, ttl time.Duration) string {
	now := time.Now()
	return s.Sign(t, jwt.MapClaims{
		"iss":   s.Issuer(),
		"sub":   u.Subject,
		"aud":   []string{Audience, s.URL + "/userinfo"},
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"scope": u.Scope,
	}, nil)
}

// IDToken mints an identity token for u valid for ttl.
func (s *Server) IDToken(t testing.TB, u User, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":            s.Issuer(),
		"sub":            u.Subject,
		"aud":            ClientID,
		"iat":            now.Unix(),
		"exp":            now.Add(ttl).Unix(),
		"email":          u.Email,
		"email_verified": true,
	}
	if u.Nickname != "" {
		claims["nickname"] = u.Nickname
	}
	if u.Name != "" {
		claims["name"] = u.Name
	}
	return s.Sign(t, claims, nil)
}

// tokenSet is built lazily inside handlers, which have no testing.TB.
func (s *Server) tokenSet(u User, withRefresh bool) (map[string]any, error) {
	now := time.Now()
	sign := func(claims jwt.MapClaims) (string, error) {
		s.mu.Lock()
		key, kid := s.key, s.kid
		s.mu.Unlock()
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		tok.Header["kid"] = kid
		return tok.SignedString(key)
	}

	at, err := sign(jwt.MapClaims{
		"iss": s.Issuer(), "sub": u.Subject, "aud": []string{Audience},
		"iat": now.Unix(), "exp": now.Add(s.tokenTTL).Unix(), "scope": u.Scope,
	})
	if err != nil {
		return nil, err
	}
	idClaims := jwt.MapClaims{
		"iss": s.Issuer(), "sub": u.Subject, "aud": ClientID,
		"iat": now.Unix(), "exp": now.Add(s.tokenTTL).Unix(),
		"email": u.Email, "email_verified": true,
	}
	if u.Nickname != "" {
		idClaims["nickname"] = u.Nickname
	}
	if u.Name != "" {
		idClaims["name"] = u.Name
	}
	id, err := sign(idClaims)
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"access_token": at,
		"id_token":     id,
		"expires_in":   int64(s.tokenTTL.Seconds()),
		"token_type":   "Bearer",
	}
	if withRefresh {
		rt, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.refresh[rt] = u
		s.mu.Unlock()
		out["refresh_token"] = rt
	}
	return out, nil
}

// AddCode registers an authorization code redeemable with verifier.
func (s *Server) AddCode(code, verifier string, u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = codeGrant{verifier: verifier, user: u}
}

// AddRefreshToken registers a refresh token for u.
func (s *Server) AddRefreshToken(rt string, u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[rt] = u
}

// AddOpaqueToken registers an introspection answer for token.
func (s *Server) AddOpaqueToken(token string, response map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opaque[token] = response
}

// AddDeviceCode registers a device code that answers authorization_pending
// for the first pending polls.
func (s *Server) AddDeviceCode(deviceCode string, u User, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device[deviceCode] = &deviceGrant{user: u, pending: pending}
}

// SetDevicePending makes device codes issued from now on answer
// authorization_pending for the first n polls.
func (s *Server) SetDevicePending(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devicePending = n
}

// SetDeviceUnavailable makes device codes issued from now on answer a bare
// 503 for the first n polls.
func (s *Server) SetDeviceUnavailable(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceUnavailable = n
}

// LastDeviceCode is the most recently issued device code.
func (s *Server) LastDeviceCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDevice
}

// DenyDevices makes device codes issued from now on answer access_denied.
func (s *Server) DenyDevices() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceDenied = true
}

// OmitDeviceRefreshToken makes device codes issued from now on authorize
// without a refresh token.
func (s *Server) OmitDeviceRefreshToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceOmitRefresh = true
}

// DevicePolls reports how many token requests hit deviceCode.
func (s *Server) DevicePolls(deviceCode string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.device[deviceCode]; ok {
		return g.polls
	}
	return 0
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	s.jwksFetches.Add(1)
	s.mu.Lock()
	set := jwtx.JWKS{Keys: []jwtx.JWK{jwtx.NewRSAJWK(s.kid, &s.key.PublicKey)}}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.tokenRequests.Add(1)
	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if r.PostForm.Get("client_id") != ClientID {
		oauthError(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		s.mu.Lock()
		g, ok := s.codes[r.PostForm.Get("code")]
		delete(s.codes, r.PostForm.Get("code"))
		s.mu.Unlock()
		if !ok || g.verifier != r.PostForm.Get("code_verifier") {
			oauthError(w, http.StatusForbidden, "invalid_grant")
			return
		}
		s.writeTokens(w, g.user, true)

	case "refresh_token":
		s.mu.Lock()
		u, ok := s.refresh[r.PostForm.Get("refresh_token")]
		s.mu.Unlock()
		if !ok {
			oauthError(w, http.StatusForbidden, "invalid_grant")
			return
		}
		s.writeTokens(w, u, false)

	case "urn:ietf:params:oauth:grant-type:device_code":
		s.mu.Lock()
		g, ok := s.device[r.PostForm.Get("device_code")]
		if ok {
			g.polls++
		}
		var (
			unavailable bool
			pending     bool
			denied      bool
			user        User
			refresh     bool
		)
		if ok {
			unavailable = g.polls <= g.unavailable
			denied = g.denied
			pending = g.polls <= g.unavailable+g.pending
			user = g.user
			refresh = !g.omitRefresh
		}
		s.mu.Unlock()

		switch {
		case !ok:
			oauthError(w, http.StatusBadRequest, "expired_token")
		case unavailable:
			http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
		case denied:
			oauthError(w, http.StatusForbidden, "access_denied")
		case pending:
			oauthError(w, http.StatusBadRequest, "authorization_pending")
		default:
			s.writeTokens(w, user, refresh)
		}

	default:
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type")
	}
}

func (s *Server) writeTokens(w http.ResponseWriter, u User, withRefresh bool) {
	set, err := s.tokenSet(u, withRefresh)
	if err != nil {
		oauthError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleDeviceCode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("client_id") != ClientID {
		oauthError(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	code := "device-" + cryptox.RandomString(12)
	s.mu.Lock()
	s.device[code] = &deviceGrant{
		user:        DefaultUser,
		pending:     s.devicePending,
		unavailable: s.deviceUnavailable,
		denied:      s.deviceDenied,
		omitRefresh: s.deviceOmitRefresh,
	}
	s.lastDevice = code
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"device_code":               code,
		"user_code":                 "ABCD-EFGH",
		"verification_uri":          s.URL + "/activate",
		"verification_uri_complete": s.URL + "/activate?user_code=ABCD-EFGH",
		"expires_in":                900,
		"interval":                  5,
	})
}

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	s.introspects.Add(1)
	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
		oauthError(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	s.mu.Lock()
	resp, ok := s.opaque[r.PostForm.Get("token")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func oauthError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
