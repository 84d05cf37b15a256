package idp

import (
	"context"
	"fmt"
	"net/url"
)

// Introspect asks the provider whether an opaque token is active (RFC 7662).
// The full response is returned so the caller can use it as claims.
func (c *Client) Introspect(ctx context.Context, token string) (map[string]any, error) {
	form := c.clientCredentials(url.Values{
		"token":           {token},
		"token_type_hint": {"access_token"},
	})

	var out map[string]any
	if err := c.postForm(ctx, IntrospectPath, form, &out); err != nil {
		return nil, err
	}
	if _, ok := out["active"].(bool); !ok {
		return nil, fmt.Errorf("%w: introspection without active flag", ErrMalformedResponse)
	}
	return out, nil
}
