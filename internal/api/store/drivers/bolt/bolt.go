// Package bolt keeps objects in a single bbolt file, suitable for a single
// instance deployment.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kiloOhm/kilo-zone/internal/api/store"
)

const (
	dirPerm     = fs.FileMode(0o700)
	filePerm    = fs.FileMode(0o600)
	openTimeout = 5 * time.Second
)

var (
	bucketData = []byte("objects")
	bucketMeta = []byte("objects_meta")
)

type record struct {
	Meta store.Meta `json:"meta"`
	Size int64      `json:"size"`
}

type Store struct {
	db *bolt.DB
	// maxSize bounds how much of a reader Put will buffer. Zero is unbounded.
	maxSize int64
}

var _ store.Store = (*Store)(nil)

// ErrTooLarge is returned by Put when the body exceeds the configured limit.
var ErrTooLarge = errors.New("bolt: object too large")

type Option func(*Store)

func WithMaxSize(n int64) Option {
	return func(s *Store) { s.maxSize = n }
}

// Open opens or creates the object database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("creating objects directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening objects db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketData, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing objects db: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database is still open and readable.
func (s *Store) Ping(context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketData) == nil {
			return errors.New("bolt: objects bucket missing")
		}
		return nil
	})
}

func (s *Store) Get(_ context.Context, key string) (*store.Object, error) {
	var (
		data []byte
		rec  record
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketData).Get([]byte(key))
		if v == nil {
			return store.ErrNotFound
		}
		// Values are only valid inside the transaction.
		data = bytes.Clone(v)

		if m := tx.Bucket(bucketMeta).Get([]byte(key)); m != nil {
			return json.Unmarshal(m, &rec)
		}
		rec.Size = int64(len(data))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &store.Object{
		Meta: rec.Meta,
		Body: io.NopCloser(bytes.NewReader(data)),
		Size: int64(len(data)),
	}, nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, meta store.Meta) (int64, error) {
	if key == "" {
		return 0, errors.New("bolt: empty key")
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return 0, fmt.Errorf("reading object: %w", err)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return 0, ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rec, err := json.Marshal(record{Meta: meta, Size: int64(len(data))})
	if err != nil {
		return 0, err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketData).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(key), rec)
	})
	if err != nil {
		return 0, fmt.Errorf("writing object: %w", err)
	}
	return int64(len(data)), nil
}

// Delete removes keys. Missing keys are ignored.
func (s *Store) Delete(_ context.Context, keys ...string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, k := range keys {
			if err := tx.Bucket(bucketData).Delete([]byte(k)); err != nil {
				return err
			}
			if err := tx.Bucket(bucketMeta).Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}
