package jwtx

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kiloOhm/kilo-zone/pkg/cache"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

// DefaultKeyTTL applies to keys that do not advertise their own exp.
const DefaultKeyTTL = time.Hour

const maxJWKSBytes = 1 << 20

// KeySource resolves issuer signing keys. Keys are cached per (issuer, kid)
// so a rotation at the provider is picked up as soon as a new kid appears.
//
// Concurrent misses for the same kid each fetch the document; the fetch is
// idempotent and not worth serialising.
type KeySource struct {
	keys   cache.Typed[JWK]
	client *http.Client
	now    func() time.Time
}

func NewKeySource(c cache.Cache, client *http.Client) *KeySource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &KeySource{
		keys:   cache.NewTyped[JWK](c),
		client: client,
		now:    time.Now,
	}
}

// KeyCacheKey is the cache key for one issuer key.
func KeyCacheKey(issuer, kid string) string {
	return "public-key-" + issuer + "-" + kid
}

// JWKSURL is where issuer publishes its key set.
func JWKSURL(issuer string) string {
	return strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"
}

// Key returns the RSA public key for (issuer, kid). The issuer must already
// be validated by the caller.
func (s *KeySource) Key(ctx context.Context, issuer, kid string) (*rsa.PublicKey, error) {
	log := slogx.FromContext(ctx)
	cacheKey := KeyCacheKey(issuer, kid)

	jwk, ok, err := s.keys.Get(ctx, cacheKey)
	if err != nil {
		// A corrupt entry is treated as a miss and overwritten below.
		log.Warn("jwks cache read failed", "kid", kid, "error", err)
	}
	if ok {
		return jwk.RSAPublicKey()
	}

	set, err := s.fetch(ctx, issuer)
	if err != nil {
		return nil, err
	}

	jwk, found := set.Find(kid)
	if !found {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}

	pub, err := jwk.RSAPublicKey()
	if err != nil {
		return nil, err
	}

	if err := s.keys.Set(ctx, cacheKey, jwk, s.ttl(jwk)); err != nil {
		log.Warn("jwks cache write failed", "kid", kid, "error", err)
	}
	return pub, nil
}

func (s *KeySource) ttl(k JWK) time.Duration {
	if k.Exp != nil {
		if d := time.Unix(*k.Exp, 0).Sub(s.now()); d > 0 {
			return d
		}
	}
	return DefaultKeyTTL
}

func (s *KeySource) fetch(ctx context.Context, issuer string) (*JWKS, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, JWKSURL(issuer), nil)
	if err != nil {
		return nil, fmt.Errorf("jwtx: build jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwtx: fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwtx: fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var set JWKS
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJWKS, err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Debug("fetched jwks", "issuer", issuer, "keys", len(set.Keys))
	return &set, nil
}
