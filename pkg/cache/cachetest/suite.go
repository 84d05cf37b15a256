// Package cachetest holds the behaviour every cache driver must share.
package cachetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiloOhm/kilo-zone/pkg/cache"
)

// Run exercises c against the cache.Cache contract. Expiry is left to the
// driver tests since each driver controls time differently.
func Run(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss is not an error", func(t *testing.T) {
		v, ok, err := c.Get(ctx, "missing")
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, v)
	})

	t.Run("set get delete", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))

		v, ok, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("v1"), v)

		require.NoError(t, c.Delete(ctx, "k1"))
		_, ok, err = c.Get(ctx, "k1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("overwrite replaces value", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k2", []byte("a"), time.Minute))
		require.NoError(t, c.Set(ctx, "k2", []byte("b"), time.Minute))

		v, ok, err := c.Get(ctx, "k2")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("b"), v)
	})

	t.Run("no ttl keeps value", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k3", []byte("forever"), cache.NoExpiration))
		v, ok, err := c.Get(ctx, "k3")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("forever"), v)
	})

	t.Run("delete missing key", func(t *testing.T) {
		require.NoError(t, c.Delete(ctx, "never-set"))
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, c.Set(ctx, "shared", []byte{byte(i)}, time.Minute))
				_, _, err := c.Get(ctx, "shared")
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		_, ok, err := c.Get(ctx, "shared")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, c.Ping(ctx))
	})
}
