package jwtx

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// JWK is an RSA public key as published by the identity provider (RFC 7517).
type JWK struct {
	Kid string   `json:"kid"`
	Kty string   `json:"kty"`
	Use string   `json:"use"`
	N   string   `json:"n"` // modulus (base64url)
	E   string   `json:"e"` // exponent (base64url)
	Exp *int64   `json:"exp,omitempty"`
	Iat *int64   `json:"iat,omitempty"`
	Nbf *int64   `json:"nbf,omitempty"`
	Alg string   `json:"alg,omitempty"`
	X5t string   `json:"x5t,omitempty"`
	X5c []string `json:"x5c,omitempty"`
}

// JWKS is a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewRSAJWK builds a signing JWK for an RSA public key.
func NewRSAJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kid: kid,
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// Validate checks the fields every cached key must carry.
func (j *JWK) Validate() error {
	switch {
	case j.Kid == "":
		return errors.New("jwk: missing kid")
	case j.Kty == "":
		return errors.New("jwk: missing kty")
	case j.Use == "":
		return errors.New("jwk: missing use")
	case j.N == "" || j.E == "":
		return errors.New("jwk: missing rsa parameters")
	}
	return nil
}

func (s *JWKS) Validate() error {
	if s.Keys == nil {
		return fmt.Errorf("%w: missing keys", ErrInvalidJWKS)
	}
	for i := range s.Keys {
		if err := s.Keys[i].Validate(); err != nil {
			return fmt.Errorf("%w: key %d: %v", ErrInvalidJWKS, i, err)
		}
	}
	return nil
}

// Find returns the key with the given kid.
func (s *JWKS) Find(kid string) (JWK, bool) {
	for _, k := range s.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return JWK{}, false
}

// RSAPublicKey decodes the modulus and exponent.
func (j JWK) RSAPublicKey() (*rsa.PublicKey, error) {
	if j.Kty != "RSA" {
		return nil, fmt.Errorf("jwtx: unsupported kty %q", j.Kty)
	}
	nb, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("jwtx: decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("jwtx: decode exponent: %w", err)
	}
	e := new(big.Int).SetBytes(eb)
	if !e.IsInt64() || e.Int64() < 2 {
		return nil, errors.New("jwtx: invalid rsa exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(e.Int64())}, nil
}
