package jwtx

import (
	"errors"
	"net/http"
)

// Kind is the closed set of reasons a credential can be rejected.
type Kind int

const (
	KindMalformed Kind = iota + 1
	KindInvalidType
	KindUnsupportedAlgorithm
	KindInvalidIssuer
	KindInvalidAudience
	KindExpired
	KindNotYetValid
	KindIssuedInFuture
	KindInvalidSignature
	KindInactive
	KindInvalidClaims
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindInvalidType:
		return "invalid_type"
	case KindUnsupportedAlgorithm:
		return "unsupported_algorithm"
	case KindInvalidIssuer:
		return "invalid_issuer"
	case KindInvalidAudience:
		return "invalid_audience"
	case KindExpired:
		return "expired"
	case KindNotYetValid:
		return "not_yet_valid"
	case KindIssuedInFuture:
		return "issued_in_future"
	case KindInvalidSignature:
		return "invalid_signature"
	case KindInactive:
		return "inactive"
	case KindInvalidClaims:
		return "invalid_claims"
	default:
		return "unknown"
	}
}

// message is what a client gets to see for each kind.
func (k Kind) message() string {
	switch k {
	case KindMalformed:
		return "Token invalid"
	case KindInvalidType:
		return "Invalid token type"
	case KindUnsupportedAlgorithm:
		return "Invalid token algorithm"
	case KindInvalidIssuer:
		return "Invalid issuer"
	case KindInvalidAudience:
		return "Invalid audience"
	case KindExpired:
		return "Token expired"
	case KindNotYetValid:
		return "Token not before"
	case KindIssuedInFuture:
		return "Token issued at"
	case KindInvalidSignature:
		return "Token signature mismatched"
	case KindInactive:
		return "Token not active"
	case KindInvalidClaims:
		return "Invalid token claims"
	default:
		return "Unauthorized"
	}
}

// Error is a credential rejection. Every Error maps to 401.
type Error struct {
	Kind   Kind
	Detail string
}

func newError(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return "jwtx: " + e.Kind.String()
	}
	return "jwtx: " + e.Kind.String() + ": " + e.Detail
}

func (e *Error) StatusCode() int { return http.StatusUnauthorized }

// PublicMessage is the human-readable cause returned to clients.
func (e *Error) PublicMessage() string { return e.Kind.message() }

// Is matches on Kind so callers can use errors.Is(err, jwtx.ErrExpired).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrMalformed            = &Error{Kind: KindMalformed}
	ErrInvalidType          = &Error{Kind: KindInvalidType}
	ErrUnsupportedAlgorithm = &Error{Kind: KindUnsupportedAlgorithm}
	ErrInvalidIssuer        = &Error{Kind: KindInvalidIssuer}
	ErrInvalidAudience      = &Error{Kind: KindInvalidAudience}
	ErrExpired              = &Error{Kind: KindExpired}
	ErrNotYetValid          = &Error{Kind: KindNotYetValid}
	ErrIssuedInFuture       = &Error{Kind: KindIssuedInFuture}
	ErrInvalidSignature     = &Error{Kind: KindInvalidSignature}
	ErrInactive             = &Error{Kind: KindInactive}
	ErrInvalidClaims        = &Error{Kind: KindInvalidClaims}
)

// Infrastructure failures. These are not credential problems and surface as 500.
var (
	ErrKeyNotFound     = errors.New("jwtx: public key not found")
	ErrInvalidJWKS     = errors.New("jwtx: invalid jwks document")
	ErrNoIntrospection = errors.New("jwtx: opaque token and no introspector configured")
)
