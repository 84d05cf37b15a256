package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiloOhm/kilo-zone/pkg/cache"
	"github.com/kiloOhm/kilo-zone/pkg/cache/drivers/memory"
)

type window struct {
	IP       string  `json:"ip"`
	Requests []int64 `json:"requests"`
}

func (w *window) Validate() error {
	if w.IP == "" {
		return errors.New("ip required")
	}
	return nil
}

func TestTypedJSON(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute)
	typed := cache.NewTyped[window](c)

	require.NoError(t, typed.Set(ctx, "rate-limit-1.1.1.1", window{IP: "1.1.1.1", Requests: []int64{1, 2}}, time.Minute))

	got, ok, err := typed.Get(ctx, "rate-limit-1.1.1.1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1.1.1.1", got.IP)
	require.Equal(t, []int64{1, 2}, got.Requests)

	raw, _, _ := c.Get(ctx, "rate-limit-1.1.1.1")
	require.JSONEq(t, `{"ip":"1.1.1.1","requests":[1,2]}`, string(raw))
}

func TestTypedStringBypassesJSON(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute)
	typed := cache.NewTyped[string](c)

	require.NoError(t, typed.Set(ctx, "code_verifier:abc", "plain-verifier", time.Minute))

	raw, ok, err := c.Get(ctx, "code_verifier:abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "plain-verifier", string(raw))

	got, ok, err := typed.Get(ctx, "code_verifier:abc")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "plain-verifier", got)
}

func TestTypedRejectsInvalidValues(t *testing.T) {
	ctx := context.Background()
	c := memory.New(time.Minute)
	typed := cache.NewTyped[window](c)

	require.NoError(t, c.Set(ctx, "garbage", []byte("{not json"), time.Minute))
	_, ok, err := typed.Get(ctx, "garbage")
	require.ErrorIs(t, err, cache.ErrInvalidValue)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "no-ip", []byte(`{"requests":[]}`), time.Minute))
	_, _, err = typed.Get(ctx, "no-ip")
	require.ErrorIs(t, err, cache.ErrInvalidValue)
}

func TestTypedMiss(t *testing.T) {
	typed := cache.NewTyped[window](memory.New(time.Minute))
	_, ok, err := typed.Get(context.Background(), "nothing")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = typed.Get(context.Background(), "")
	require.ErrorIs(t, err, cache.ErrEmptyKey)
}
