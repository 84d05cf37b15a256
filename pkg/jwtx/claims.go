package jwtx

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Audience accepts both the string and array forms of "aud".
type Audience []string

func (a *Audience) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*a = Audience{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("aud must be a string or an array of strings")
	}
	*a = many
	return nil
}

func (a Audience) MarshalJSON() ([]byte, error) {
	if len(a) == 1 {
		return json.Marshal(a[0])
	}
	return json.Marshal([]string(a))
}

// ContainsAny reports whether any of want is in the audience.
func (a Audience) ContainsAny(want []string) bool {
	for _, w := range want {
		if slices.Contains(a, w) {
			return true
		}
	}
	return false
}

// AccessToken is a bearer credential for this API.
type AccessToken struct {
	Issuer   string   `json:"iss"`
	Subject  string   `json:"sub"`
	Audience Audience `json:"aud"`
	Expiry   int64    `json:"exp"`
	IssuedAt int64    `json:"iat"`
	Scope    string   `json:"scope"`

	// Raw is the presented token, kept so handlers can forward it.
	Raw string `json:"-"`
}

func (t *AccessToken) Validate() error {
	switch {
	case t.Issuer == "":
		return errors.New("missing iss")
	case t.Subject == "":
		return errors.New("missing sub")
	case t.Expiry == 0:
		return errors.New("missing exp")
	case t.IssuedAt == 0:
		return errors.New("missing iat")
	}
	return nil
}

// Scopes returns the known, non-default scopes granted by the token.
func (t *AccessToken) Scopes() []Scope { return ParseScopes(t.Scope) }

// IDToken carries the identity of the signed-in user.
type IDToken struct {
	Issuer        string   `json:"iss"`
	Subject       string   `json:"sub"`
	Audience      Audience `json:"aud"`
	Expiry        int64    `json:"exp"`
	IssuedAt      int64    `json:"iat"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Nickname      string   `json:"nickname,omitempty"`
	Name          string   `json:"name,omitempty"`
}

func (t *IDToken) Validate() error {
	switch {
	case t.Issuer == "":
		return errors.New("missing iss")
	case t.Subject == "":
		return errors.New("missing sub")
	case t.Expiry == 0:
		return errors.New("missing exp")
	case t.IssuedAt == 0:
		return errors.New("missing iat")
	case t.Email == "":
		return errors.New("missing email")
	}
	return nil
}

// DisplayName prefers nickname, then name, then the subject.
func (t *IDToken) DisplayName() string {
	switch {
	case t.Nickname != "":
		return t.Nickname
	case t.Name != "":
		return t.Name
	default:
		return t.Subject
	}
}

// AccessToken decodes and validates the result as an access token. The
// scope claim must be present, which ID tokens never carry.
func (r *Result) AccessToken() (*AccessToken, error) {
	if _, ok := r.Claims["scope"].(string); !ok {
		return nil, newError(KindInvalidClaims, "missing scope")
	}
	var t AccessToken
	if err := r.decode(&t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, newError(KindInvalidClaims, err.Error())
	}
	return &t, nil
}

// IDToken decodes and validates the result as an identity token.
func (r *Result) IDToken() (*IDToken, error) {
	var t IDToken
	if err := r.decode(&t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, newError(KindInvalidClaims, err.Error())
	}
	return &t, nil
}

func (r *Result) decode(dst any) error {
	b, err := json.Marshal(r.Claims)
	if err != nil {
		return newError(KindInvalidClaims, err.Error())
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return newError(KindInvalidClaims, fmt.Sprintf("decode claims: %v", err))
	}
	return nil
}
