package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	fileDirPerm     = fs.FileMode(0o700)
	filePerm        = fs.FileMode(0o600)
	fileOpenTimeout = 5 * time.Second
)

var (
	credentialsBucket = []byte("credentials")
	defaultKey        = []byte("default")
)

// File stores credentials in a bbolt database, for machines without a
// keyring such as CI runners.
type File struct {
	db *bolt.DB
}

var _ Store = (*File)(nil)

// OpenFile opens or creates the database at path.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), fileDirPerm); err != nil {
		return nil, fmt.Errorf("creating credentials directory: %w", err)
	}

	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: fileOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening credentials db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing credentials db: %w", err)
	}

	return &File{db: db}, nil
}

func (f *File) Close() error { return f.db.Close() }

func (f *File) Load(context.Context) (*Credentials, error) {
	var c *Credentials
	err := f.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(credentialsBucket).Get(defaultKey)
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction; Unmarshal copies.
		c = &Credentials{}
		return json.Unmarshal(v, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (f *File) Save(_ context.Context, c *Credentials) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return f.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put(defaultKey, raw)
	})
}

func (f *File) Delete(context.Context) error {
	return f.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete(defaultKey)
	})
}
