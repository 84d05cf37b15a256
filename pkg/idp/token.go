package idp

import (
	"context"
	"errors"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// TokenResponse is the token endpoint payload the flows rely on.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func (t *TokenResponse) Validate() error {
	switch {
	case t.AccessToken == "":
		return errors.New("missing access_token")
	case t.IDToken == "":
		return errors.New("missing id_token")
	}
	return nil
}

// ExpiresAt converts expires_in relative to now.
func (t *TokenResponse) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

func fromOAuth2Token(tok *oauth2.Token) *TokenResponse {
	out := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    tok.ExpiresIn,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = id
	}
	if out.ExpiresIn == 0 && !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(time.Until(tok.Expiry).Round(time.Second).Seconds())
	}
	return out
}

// ExchangeCode redeems an authorization code with its PKCE verifier.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	ctx, err := c.wait(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fromOAuth2(err)
	}
	return validated(fromOAuth2Token(tok))
}

// Refresh trades a refresh token for a new token set. A single attempt;
// failures are returned to the caller, never retried.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, errors.New("idp: empty refresh token")
	}

	ctx, err := c.wait(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fromOAuth2(err)
	}

	out := fromOAuth2Token(tok)
	if out.AccessToken == "" {
		return nil, ErrMalformedResponse
	}
	return out, nil
}

// PollDeviceToken performs exactly one device_code token request. A pending
// authorization comes back as an *Error for which Pending() is true.
func (c *Client) PollDeviceToken(ctx context.Context, deviceCode string) (*TokenResponse, error) {
	form := c.clientCredentials(url.Values{
		"grant_type":  {DeviceCodeGrantType},
		"device_code": {deviceCode},
	})

	var out TokenResponse
	if err := c.postForm(ctx, TokenPath, form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func validated(t *TokenResponse) (*TokenResponse, error) {
	if err := t.Validate(); err != nil {
		return nil, errors.Join(ErrMalformedResponse, err)
	}
	return t, nil
}
