package app_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/kiloOhm/kilo-zone/internal/api/app"
	"github.com/kiloOhm/kilo-zone/pkg/cache"
	"github.com/kiloOhm/kilo-zone/pkg/cache/drivers/memory"
	"github.com/kiloOhm/kilo-zone/pkg/cache/drivers/redis"
	"github.com/kiloOhm/kilo-zone/pkg/cache/drivers/sqlite"
)

func setRequired(t *testing.T) {
	t.Setenv("AUTH_URL", "https://kilo.eu.auth0.com")
	t.Setenv("CLIENT_ID", "client")
	t.Setenv("CLIENT_SECRET", "client-secret")
	t.Setenv("REDIRECT_URI", "https://kilo.zone/auth/callback")
	t.Setenv("API_AUDIENCE", "https://api.kilo.zone")
	t.Setenv("AUTH_SECRET", "auth-secret")
	t.Setenv("OBJECT_STORAGE_SIGNING_SECRET", "object-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
	require.Equal(t, "kz_session", cfg.SessionCookie)
	require.Equal(t, app.CacheMemory, cfg.CacheDriver)
	require.EqualValues(t, 104857600, cfg.MaxFileSize)
	require.Equal(t, 30*time.Minute, cfg.ObjectLinkTTL)
	require.Equal(t, 5, cfg.RateLimitAnonRequests)
	require.Equal(t, 50, cfg.RateLimitAuthRequests)
	require.Equal(t, time.Minute, cfg.RateLimitWindow)
	require.Equal(t, "CF-Connecting-IP", cfg.RateLimitIPHeader)
	require.Empty(t, cfg.RateLimitSkipSecret)
	require.False(t, cfg.Dev)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing client secret", map[string]string{"CLIENT_SECRET": ""}, "CLIENT_SECRET is required"},
		{"missing auth secret", map[string]string{"AUTH_SECRET": ""}, "AUTH_SECRET is required"},
		{"shared secrets", map[string]string{"OBJECT_STORAGE_SIGNING_SECRET": "auth-secret"}, "must differ"},
		{"redis without url", map[string]string{"CACHE_DRIVER": "redis"}, "REDIS_URL is required"},
		{"unknown driver", map[string]string{"CACHE_DRIVER": "memcached"}, `unknown CACHE_DRIVER "memcached"`},
		{"bad duration", map[string]string{"RATE_LIMIT_WINDOW": "soon"}, "parsing config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := app.LoadConfig()
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	c, err := app.OpenCache(ctx, app.Config{CacheDriver: app.CacheMemory})
	require.NoError(t, err)
	require.IsType(t, &memory.Cache{}, c)

	c, err = app.OpenCache(ctx, app.Config{
		CacheDriver:       app.CacheSQLite,
		CacheDatabaseFile: filepath.Join(t.TempDir(), "cache.db"),
	})
	require.NoError(t, err)
	require.IsType(t, &sqlite.Store{}, c)
	require.Implements(t, (*cache.Sweeper)(nil), c)
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.(*sqlite.Store).Close())

	mr := miniredis.RunT(t)
	c, err = app.OpenCache(ctx, app.Config{CacheDriver: app.CacheRedis, RedisURL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	require.IsType(t, &redis.Cache{}, c)
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.True(t, mr.Exists("kilozone:k"))
	require.NoError(t, c.(*redis.Cache).Close())

	_, err = app.OpenCache(ctx, app.Config{CacheDriver: app.CacheRedis, RedisURL: "redis://127.0.0.1:1"})
	require.Error(t, err)
}
