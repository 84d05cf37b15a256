// Package credstore persists CLI credentials obtained through the device
// flow, either in the OS keyring or in a local bbolt file.
package credstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load when nobody is logged in.
var ErrNotFound = errors.New("credstore: no stored credentials")

// ExpirySkew refreshes slightly early so a token does not expire in flight.
const ExpirySkew = 30 * time.Second

// Credentials is the token set kept between CLI invocations.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	IDToken      string    `json:"id_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token should be refreshed at now.
func (c *Credentials) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt.Add(-ExpirySkew))
}

// Store is durable local storage for one set of credentials.
type Store interface {
	Load(ctx context.Context) (*Credentials, error)
	Save(ctx context.Context, c *Credentials) error
	Delete(ctx context.Context) error
}
