package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiloOhm/kilo-zone/pkg/cache/cachetest"
	"github.com/kiloOhm/kilo-zone/pkg/cache/drivers/memory"
)

func TestContract(t *testing.T) {
	cachetest.Run(t, memory.New(time.Minute))
}

func TestExpiry(t *testing.T) {
	c := memory.New(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("x"), 20*time.Millisecond))
	require.Eventually(t, func() bool {
		_, ok, err := c.Get(ctx, "short")
		return err == nil && !ok
	}, time.Second, 5*time.Millisecond)
}

func TestReturnedSliceIsACopy(t *testing.T) {
	c := memory.New(time.Minute)
	ctx := context.Background()

	in := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", in, time.Minute))
	in[0] = 'z'

	out, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc", string(out))

	out[0] = 'q'
	again, _, _ := c.Get(ctx, "k")
	require.Equal(t, "abc", string(again))
}
