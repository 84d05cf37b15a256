package httpx

import (
	"context"
	"crypto/subtle"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/kiloOhm/kilo-zone/pkg/cache"
	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

const (
	// SkipHeader carries the operational bypass secret.
	SkipHeader = "X-RateLimit-Skip"
	// DefaultIPHeader is set by Cloudflare in front of the service.
	DefaultIPHeader = "CF-Connecting-IP"
)

// Budget is the number of requests allowed in any sliding Window.
type Budget struct {
	Requests int
	Window   time.Duration
}

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// Key keeps a separate counter per endpoint group. Optional.
	Key string
	// Anonymous applies to callers without an access token. Zero means
	// Authenticated applies to everyone.
	Anonymous     Budget
	Authenticated Budget
	// Exclude lists path patterns that are never limited, see PathExcluded.
	Exclude []string
	// SkipSecret, when sent in SkipHeader, bypasses limiting. Empty
	// disables the bypass.
	SkipSecret string
	// Dev treats every caller as loopback.
	Dev bool
	// IPHeader is the trusted proxy header holding the client address.
	// Empty uses the connection's remote address.
	IPHeader string

	Now func() time.Time
}

// window is the stored sliding-window record of one client.
type window struct {
	IP       string      `json:"ip"`
	Requests []time.Time `json:"requests"`
}

func (w *window) Validate() error {
	if w.IP == "" {
		return errors.New("missing ip")
	}
	return nil
}

// RateLimitKey is the cache key holding the counter for ip.
func RateLimitKey(ip, key string) string {
	k := "rate-limit-" + ip
	if key != "" {
		k += "-" + key
	}
	return k
}

// RateLimit limits each client to its budget within a sliding window.
// Authenticate must run first for authenticated budgets to apply.
func RateLimit(c cache.Cache, cfg RateLimitConfig) Middleware {
	windows := cache.NewTyped[window](c)
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if PathExcluded(r.URL.Path, cfg.Exclude) {
				next.ServeHTTP(w, r)
				return
			}
			if cfg.SkipSecret != "" &&
				subtle.ConstantTimeCompare([]byte(r.Header.Get(SkipHeader)), []byte(cfg.SkipSecret)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			log := slogx.FromContext(ctx)

			budget := cfg.Authenticated
			if !authenticated(ctx) && cfg.Anonymous.Requests > 0 {
				budget = cfg.Anonymous
			}
			if budget.Requests <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r, cfg.IPHeader, cfg.Dev)
			if ip == "" {
				WriteError(w, r, errx.BadRequest("No IP provided"))
				return
			}
			key := RateLimitKey(ip, cfg.Key)

			rec, found, err := windows.Get(ctx, key)
			if err != nil {
				// A corrupt record must not lock the client out for good.
				log.Error("rate limit: reading window", "err", err)
				found = false
			}

			now := cfg.Now()
			boundary := now.Add(-budget.Window)
			var recent []time.Time
			if found {
				for _, t := range rec.Requests {
					if t.After(boundary) {
						recent = append(recent, t)
					}
				}
			}

			if len(recent) >= budget.Requests {
				retryAfter := int(math.Ceil(recent[0].Add(budget.Window).Sub(now).Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(budget.Requests))
				w.Header().Set("X-RateLimit-Window", budget.Window.String())

				log.Warn("rate limit exceeded",
					"key", key,
					"limit", budget.Requests,
					"window", budget.Window,
					"path", r.URL.Path,
				)
				WriteError(w, r, errx.TooManyRequests("Too many requests"))
				return
			}

			recent = append(recent, now)
			if err := windows.Set(ctx, key, window{IP: ip, Requests: recent}, budget.Window); err != nil {
				log.Error("rate limit: writing window", "err", err)
			}

			ctx = context.WithValue(ctx, ctxKeyRateLimit, func(ctx context.Context) error {
				return windows.Delete(ctx, key)
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResetRateLimit clears the calling client's counter. It is a no-op when no
// rate limiter handled the request.
func ResetRateLimit(ctx context.Context) error {
	reset, ok := ctx.Value(ctxKeyRateLimit).(func(context.Context) error)
	if !ok {
		return nil
	}
	return reset(ctx)
}
