package slogx_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiloOhm/kilo-zone/pkg/idx"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

func TestHTTPMiddleware(t *testing.T) {
	t.Run("propagates a valid request id", func(t *testing.T) {
		var buf bytes.Buffer
		id := idx.New()

		h := slogx.HTTPMiddleware(newBufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NotNil(t, slogx.FromContext(r.Context()))
			w.WriteHeader(http.StatusTeapot)
		}))

		req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
		req.Header.Set(slogx.RequestIDHeader, id.String())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, id.String(), rec.Header().Get(slogx.RequestIDHeader))

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		require.Equal(t, id.String(), line["req_id"])
		require.EqualValues(t, http.StatusTeapot, line["status"])
		require.Equal(t, "/v1/me", line["path"])
	})

	t.Run("replaces a malformed request id", func(t *testing.T) {
		var buf bytes.Buffer
		h := slogx.HTTPMiddleware(newBufferLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(slogx.RequestIDHeader, "evil\nline")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		got := rec.Header().Get(slogx.RequestIDHeader)
		require.NotEqual(t, "evil\nline", got)
		_, err := idx.Parse(got)
		require.NoError(t, err)
	})
}

func TestWithExtendsContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := slogx.WithContext(t.Context(), newBufferLogger(&buf))
	ctx = slogx.With(ctx, "sub", "user-1")

	slogx.FromContext(ctx).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "user-1", line["sub"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, slogx.ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, slogx.ParseLevel("warning"))
	require.Equal(t, slog.LevelError, slogx.ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, slogx.ParseLevel("nonsense"))
}
