package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kiloOhm/kilo-zone/internal/api/store"
	"github.com/kiloOhm/kilo-zone/pkg/capability"
	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

// PastePrefix namespaces page attachments in object storage.
const PastePrefix = "paste_"

const defaultContentType = "application/octet-stream"

// Upload describes a file received for an object.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Uploaded struct {
	Size     int64  `json:"size"`
	Mimetype string `json:"mimetype"`
	FileName string `json:"fileName"`
}

type Links struct {
	Upload   string `json:"upload"`
	Download string `json:"download"`
}

// ObjectService gates object storage behind capability tokens.
type ObjectService struct {
	Store       store.Store
	Issuer      *capability.Issuer
	MaxFileSize int64
	LinkTTL     time.Duration
}

// Links signs an upload and a download URL for key.
func (s *ObjectService) Links(key string) (*Links, error) {
	up, err := s.Issuer.SignedURL(key, s.LinkTTL, capability.OpUpload)
	if err != nil {
		return nil, err
	}
	down, err := s.Issuer.SignedURL(key, s.LinkTTL, capability.OpDownload)
	if err != nil {
		return nil, err
	}
	return &Links{Upload: up, Download: down}, nil
}

// Authorize checks signature for op on key without touching storage.
func (s *ObjectService) Authorize(key, signature string, op capability.Op) error {
	_, err := s.Issuer.Verify(signature, key, op)
	return err
}

// Download opens the object for key once signature proves download access.
func (s *ObjectService) Download(ctx context.Context, key, signature string) (*store.Object, error) {
	if err := s.Authorize(key, signature, capability.OpDownload); err != nil {
		return nil, err
	}

	obj, err := s.Store.Get(ctx, PastePrefix+key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errx.NotFound("Object not found").Wrap(err)
	}
	if err != nil {
		return nil, fmt.Errorf("objects: get %s: %w", key, err)
	}
	if obj.Meta.ContentType == "" {
		obj.Meta.ContentType = defaultContentType
	}
	return obj, nil
}

// Upload stores u under key once signature proves upload access.
func (s *ObjectService) Upload(ctx context.Context, key, signature string, u Upload) (*Uploaded, error) {
	if err := s.Authorize(key, signature, capability.OpUpload); err != nil {
		return nil, err
	}
	if s.MaxFileSize > 0 && u.Size > s.MaxFileSize {
		return nil, errx.BadRequest("File too large")
	}

	contentType := u.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	n, err := s.Store.Put(ctx, PastePrefix+key, u.Body, store.Meta{
		ContentType:        contentType,
		ContentDisposition: contentDisposition(u.FileName),
	})
	if err != nil {
		return nil, fmt.Errorf("objects: put %s: %w", key, err)
	}

	slogx.FromContext(ctx).Info("object uploaded", "key", key, "size", n, "mimetype", contentType)
	return &Uploaded{Size: n, Mimetype: contentType, FileName: u.FileName}, nil
}

// Remove deletes the objects for keys.
func (s *ObjectService) Remove(ctx context.Context, keys ...string) error {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = PastePrefix + k
	}
	return s.Store.Delete(ctx, prefixed...)
}

func contentDisposition(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '\r', '\n':
			return '_'
		}
		return r
	}, name)
	return `attachment; filename="` + name + `"`
}
