package httpx

import (
	"net/http"
	"strings"

	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
)

// RequireScopes rejects requests whose access token lacks any of required.
// It must run after Authenticate.
func RequireScopes(required ...jwtx.Scope) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, _ := AuthFromContext(r.Context())
			if err := checkScopes(w, auth, required); err != nil {
				WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkScopes(w http.ResponseWriter, auth *Auth, required []jwtx.Scope) error {
	if auth == nil || auth.AccessToken == nil {
		return errx.Unauthorized("")
	}

	missing := jwtx.MissingScopes(auth.Scopes(), required)
	if len(missing) == 0 {
		return nil
	}

	// RFC 6750-compliant error response for bearer insufficient_scope.
	w.Header().Set("WWW-Authenticate",
		`Bearer error="insufficient_scope", scope="`+strings.Join(jwtx.ScopeStrings(required), " ")+`"`)
	return errx.Forbidden("Missing scopes: " + jwtx.JoinScopes(missing))
}
