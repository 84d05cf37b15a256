// Package store is the object storage the API streams uploads into. Keys
// are opaque strings.
package store

import (
	"context"
	"errors"
	"io"
)

var ErrNotFound = errors.New("store: object not found")

// Meta is the HTTP metadata replayed when an object is downloaded.
type Meta struct {
	ContentType        string `json:"contentType,omitempty"`
	ContentDisposition string `json:"contentDisposition,omitempty"`
}

type Object struct {
	Meta Meta
	Body io.ReadCloser
	Size int64
}

type Store interface {
	Get(ctx context.Context, key string) (*Object, error)
	// Put stores the whole of r under key and returns its size.
	Put(ctx context.Context, key string, r io.Reader, meta Meta) (int64, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}
