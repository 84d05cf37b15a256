// Package idp is a client for the external OAuth2/OIDC identity provider:
// authorization-code exchange with PKCE, refresh, device authorization and
// token introspection.
//
// Every outbound request waits on a shared rate limiter so a burst of
// expired sessions cannot hammer the provider.
package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
)

const (
	AuthorizePath  = "/authorize"
	TokenPath      = "/oauth/token"
	DeviceCodePath = "/oauth/device/code"
	IntrospectPath = "/oauth/introspect"

	DeviceCodeGrantType = "urn:ietf:params:oauth:grant-type:device_code"
)

const maxResponseBytes = 1 << 20

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string // empty for public clients such as the CLI
	RedirectURI  string
	Audience     string

	HTTPClient *http.Client

	// RequestsPerSecond caps outbound calls. Zero means 10.
	RequestsPerSecond float64
}

type Client struct {
	baseURL string
	cfg     Config
	oauth   *oauth2.Config
	http    *http.Client
	limiter *rate.Limiter
}

var _ jwtx.Introspector = (*Client)(nil)

func New(cfg Config) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps * 2)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		baseURL: base,
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:       base + AuthorizePath,
				TokenURL:      base + TokenPath,
				DeviceAuthURL: base + DeviceCodePath,
				AuthStyle:     oauth2.AuthStyleInParams,
			},
		},
	}
}

// Issuer is the provider base URL without a trailing slash.
func (c *Client) Issuer() string { return c.baseURL }

func (c *Client) ClientID() string { return c.cfg.ClientID }

func (c *Client) Audience() string { return c.cfg.Audience }

// HTTPClient is shared with the JWKS key source.
func (c *Client) HTTPClient() *http.Client { return c.http }

// AuthCodeURL builds the /authorize redirect for the PKCE browser flow.
func (c *Client) AuthCodeURL(state string, scopes []jwtx.Scope, challenge string) string {
	cfg := *c.oauth
	cfg.Scopes = jwtx.ScopeStrings(scopes)

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if c.cfg.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", c.cfg.Audience))
	}
	return cfg.AuthCodeURL(state, opts...)
}

// wait blocks on the outbound budget and returns a context carrying our
// HTTP client for x/oauth2.
func (c *Client) wait(ctx context.Context) (context.Context, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ctx, fmt.Errorf("idp: rate limit: %w", err)
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.http), nil
}

// postForm sends an x-www-form-urlencoded request and decodes a 200 JSON
// body into target. Other statuses become *Error.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, target any) error {
	ctx, err := c.wait(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("idp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("idp: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("idp: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

// clientCredentials adds client_id and, for confidential clients, client_secret.
func (c *Client) clientCredentials(form url.Values) url.Values {
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}
	return form
}
