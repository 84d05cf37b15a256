package bolt_test

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiloOhm/kilo-zone/internal/api/store"
	"github.com/kiloOhm/kilo-zone/internal/api/store/drivers/bolt"
)

func open(t *testing.T, opts ...bolt.Option) *bolt.Store {
	t.Helper()
	s, err := bolt.Open(filepath.Join(t.TempDir(), "data", "objects.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	meta := store.Meta{ContentType: "text/plain", ContentDisposition: `attachment; filename="a.txt"`}
	n, err := s.Put(ctx, "paste_a", strings.NewReader("hello"), meta)
	require.NoError(t, err)
	require.EqualValues(t, 5, n)

	obj, err := s.Get(ctx, "paste_a")
	require.NoError(t, err)
	defer obj.Body.Close()
	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
	require.EqualValues(t, 5, obj.Size)
	require.Equal(t, meta, obj.Meta)

	require.NoError(t, s.Delete(ctx, "paste_a", "never-existed"))
	_, err = s.Get(ctx, "paste_a")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPutOverwrites(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "k", strings.NewReader("one"), store.Meta{ContentType: "a/b"})
	require.NoError(t, err)
	_, err = s.Put(ctx, "k", strings.NewReader("three"), store.Meta{})
	require.NoError(t, err)

	obj, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.EqualValues(t, 5, obj.Size)
	require.Empty(t, obj.Meta.ContentType)
}

func TestMaxSize(t *testing.T) {
	s := open(t, bolt.WithMaxSize(4))
	ctx := context.Background()

	_, err := s.Put(ctx, "k", strings.NewReader("12345"), store.Meta{})
	require.ErrorIs(t, err, bolt.ErrTooLarge)

	n, err := s.Put(ctx, "k", strings.NewReader("1234"), store.Meta{})
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
}
