package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Verifier length bounds in raw bytes, upper bound exclusive.
const (
	MinVerifierBytes = 43
	MaxVerifierBytes = 128
)

// GenerateCodeVerifier returns a PKCE code verifier built from a random
// number of random bytes in [MinVerifierBytes, MaxVerifierBytes),
// base64url-encoded without padding.
func GenerateCodeVerifier() (string, error) {
	spread, err := rand.Int(rand.Reader, big.NewInt(MaxVerifierBytes-MinVerifierBytes))
	if err != nil {
		return "", fmt.Errorf("failed to pick verifier length: %w", err)
	}

	buf := make([]byte, MinVerifierBytes+int(spread.Int64()))
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateCodeChallenge derives the S256 challenge for verifier.
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
