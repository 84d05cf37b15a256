// Package cache defines the TTL key-value contract shared by the verifier's
// key cache, the PKCE verifier store and the rate limiter, plus a typed,
// schema-validated view over it.
//
// Drivers live under drivers/ and must be safe for concurrent use. A miss is
// never an error: Get reports it through the found flag.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NoExpiration stores a value until it is deleted or evicted.
const NoExpiration time.Duration = 0

var (
	// ErrInvalidValue is returned when a cached value fails to decode or
	// validate against the caller's schema.
	ErrInvalidValue = errors.New("cache: invalid value")
	// ErrEmptyKey rejects empty keys up front.
	ErrEmptyKey = errors.New("cache: empty key")
)

// Cache is a TTL key-value store. A ttl <= 0 means no expiry. Implementations
// may evict early but must never return a value past its TTL.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Sweeper is implemented by drivers that do not expire entries natively and
// need a periodic cleanup.
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Validator is implemented by cached types that check their own shape after
// decoding.
type Validator interface {
	Validate() error
}

// Typed is a schema-aware view of a Cache. Values are JSON encoded, except
// when T is string: raw strings are stored and returned verbatim.
type Typed[T any] struct {
	c Cache
}

func NewTyped[T any](c Cache) Typed[T] {
	return Typed[T]{c: c}
}

func (t Typed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if key == "" {
		return zero, false, ErrEmptyKey
	}

	raw, ok, err := t.c.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}

	var v T
	if s, isString := any(&v).(*string); isString {
		*s = string(raw)
		return v, true, nil
	}

	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
	}
	if val, ok := any(&v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return zero, false, fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
		}
	}
	return v, true, nil
}

func (t Typed[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}

	if s, isString := any(value).(string); isString {
		return t.c.Set(ctx, key, []byte(s), ttl)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return t.c.Set(ctx, key, raw, ttl)
}

func (t Typed[T]) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return t.c.Delete(ctx, key)
}
