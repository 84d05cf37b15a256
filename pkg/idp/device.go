package idp

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
)

// DeviceCode is the device authorization response (RFC 8628).
type DeviceCode = oauth2.DeviceAuthResponse

// RequestDeviceCode starts a device authorization for scopes.
func (c *Client) RequestDeviceCode(ctx context.Context, scopes []jwtx.Scope) (*DeviceCode, error) {
	ctx, err := c.wait(ctx)
	if err != nil {
		return nil, err
	}

	cfg := *c.oauth
	cfg.Scopes = jwtx.ScopeStrings(scopes)

	var opts []oauth2.AuthCodeOption
	if c.cfg.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", c.cfg.Audience))
	}

	resp, err := cfg.DeviceAuth(ctx, opts...)
	if err != nil {
		return nil, fromOAuth2(err)
	}
	return resp, nil
}
