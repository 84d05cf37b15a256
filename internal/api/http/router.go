package http

import (
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/kiloOhm/kilo-zone/api/docs" // Swagger docs
	"github.com/kiloOhm/kilo-zone/internal/api/service"
	"github.com/kiloOhm/kilo-zone/internal/api/store"
	"github.com/kiloOhm/kilo-zone/pkg/authflow"
	"github.com/kiloOhm/kilo-zone/pkg/cache"
	"github.com/kiloOhm/kilo-zone/pkg/httpx"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
	"github.com/kiloOhm/kilo-zone/pkg/metrics"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

// rateLimitExclude are never counted against a client.
var rateLimitExclude = []string{"/auth/*", "/livez", "/readyz", "/metrics"}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	cache        cache.Cache
	store        store.Store
	metrics      *metrics.Metrics

	Auth      *authflow.Controller
	Objects   *service.ObjectService
	Cookie    string
	RateLimit httpx.RateLimitConfig
}

func NewRouter(buildVersion string, c cache.Cache, st store.Store, m *metrics.Metrics, logger *slog.Logger) *Router {
	return &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		cache:        c,
		store:        st,
		metrics:      m,
	}
}

func (r *Router) ApplyRoutes() {
	rl := r.RateLimit
	rl.Exclude = append(append([]string{}, rateLimitExclude...), rl.Exclude...)

	// logging -> metrics -> soft authentication -> rate limit -> routes
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.metrics.Instrument(r.route),
		httpx.Authenticate(r.Auth, httpx.AuthOptions{OnFail: httpx.OnFailNext, Cookie: r.Cookie}),
		httpx.RateLimit(r.cache, rl),
	}

	r.registerAuth()
	r.registerObjects()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			kilo-zone API
//	@version		0.1.0
//	@description	Short links and pastes. Browser sessions use an encrypted cookie; API clients send an access token from the identity provider.
//	@description
//	@description				Object storage is reached through short-lived signed URLs minted by /v1/objects/{key}/links.
//
//	@contact.name				kiloOhm
//	@contact.url				https://github.com/kiloOhm/kilo-zone
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Access token from the identity provider. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// route labels metrics with the matched pattern, never the raw path.
func (r *Router) route(req *http.Request) string {
	_, pattern := r.Mux.Handler(req)
	return pattern
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Auth: r.Auth, Cookie: r.Cookie}

	r.Mux.Handle("GET /auth/login", httpx.HandlerFunc(h.HandleLogin))
	r.Mux.Handle("GET /auth/callback", httpx.HandlerFunc(h.HandleCallback))
	r.Mux.Handle("GET /auth/logout", httpx.HandlerFunc(h.HandleLogout))

	// Reuses the identity resolved by the global chain.
	r.Mux.Handle("GET /v1/me",
		httpx.Chain(httpx.HandlerFunc(HandleMe),
			httpx.Authenticate(r.Auth, httpx.AuthOptions{OnFail: httpx.OnFailThrow, Cookie: r.Cookie}),
		),
	)
}

func (r *Router) registerObjects() {
	h := &ObjectsHandler{Objects: r.Objects}

	// Capability gated, no account required.
	r.Mux.Handle("GET /objects/{key}", httpx.HandlerFunc(h.HandleDownload))
	r.Mux.Handle("POST /objects/{key}", httpx.HandlerFunc(h.HandleUpload))

	pages := httpx.Authenticate(r.Auth, httpx.AuthOptions{
		OnFail:         httpx.OnFailThrow,
		Cookie:         r.Cookie,
		RequiredScopes: []jwtx.Scope{jwtx.ScopeUsePages},
	})
	r.Mux.Handle("POST /v1/objects/{key}/links", httpx.Chain(httpx.HandlerFunc(h.HandleLinks), pages))
	r.Mux.Handle("DELETE /v1/objects/{key}", httpx.Chain(httpx.HandlerFunc(h.HandleDelete), pages))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.cache, r.store))
	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}
