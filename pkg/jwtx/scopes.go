package jwtx

import (
	"slices"
	"strings"
)

// Scope is an OAuth2 scope understood by this service.
type Scope string

const (
	ScopeOpenID        Scope = "openid"
	ScopeProfile       Scope = "profile"
	ScopeEmail         Scope = "email"
	ScopeOfflineAccess Scope = "offline_access"

	ScopeUsePages Scope = "use:pages"
)

// DefaultScopes are requested on every login and never carry permissions.
var DefaultScopes = []Scope{ScopeOpenID, ScopeProfile, ScopeEmail, ScopeOfflineAccess}

// KnownScopes is the permission enumeration. Anything else is ignored.
var KnownScopes = []Scope{ScopeUsePages}

func IsKnownScope(s Scope) bool { return slices.Contains(KnownScopes, s) }

func isDefaultScope(s Scope) bool { return slices.Contains(DefaultScopes, s) }

// ParseScopes reads a space-delimited scope claim, drops the default OIDC
// scopes and anything not in KnownScopes.
func ParseScopes(scope string) []Scope {
	var out []Scope
	for _, f := range strings.Fields(scope) {
		s := Scope(f)
		if isDefaultScope(s) || !IsKnownScope(s) || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// MissingScopes returns the required scopes not present in granted, in the
// order they were required.
func MissingScopes(granted, required []Scope) []Scope {
	var missing []Scope
	for _, r := range required {
		if !slices.Contains(granted, r) && !slices.Contains(missing, r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// UnionScopes merges scope sets preserving first-seen order.
func UnionScopes(sets ...[]Scope) []Scope {
	var out []Scope
	for _, set := range sets {
		for _, s := range set {
			if s != "" && !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}

// ScopeStrings converts to plain strings for wire formats.
func ScopeStrings(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}

// JoinScopes renders scopes as a human list, e.g. "use:pages, other".
func JoinScopes(scopes []Scope) string {
	return strings.Join(ScopeStrings(scopes), ", ")
}
