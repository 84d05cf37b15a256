package authflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kiloOhm/kilo-zone/pkg/credstore"
	"github.com/kiloOhm/kilo-zone/pkg/idp"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 50
)

// ErrDeviceFlowTimeout is returned when the user never completed the
// device authorization within the attempt ceiling.
var ErrDeviceFlowTimeout = errors.New("authflow: device authorization timed out")

// DeviceFlow logs a non-browser client in with the device code grant and
// keeps the resulting credentials in Store.
type DeviceFlow struct {
	IdP      *idp.Client
	Verifier *jwtx.Verifier
	Store    credstore.Store

	Interval    time.Duration
	MaxAttempts uint
	Scopes      []jwtx.Scope
	// Out receives the instructions for the operator. Defaults to stderr.
	Out io.Writer

	now func() time.Time
}

func (f *DeviceFlow) defaults() {
	if f.Interval <= 0 {
		f.Interval = DefaultPollInterval
	}
	if f.MaxAttempts == 0 {
		f.MaxAttempts = DefaultMaxAttempts
	}
	if f.Out == nil {
		f.Out = os.Stderr
	}
	if f.now == nil {
		f.now = time.Now
	}
}

// Run requests a device code, waits for the operator to approve it and
// persists the tokens. Cancelling ctx stops polling immediately.
func (f *DeviceFlow) Run(ctx context.Context) (*credstore.Credentials, error) {
	f.defaults()
	log := slogx.FromContext(ctx)

	dc, err := f.IdP.RequestDeviceCode(ctx, jwtx.UnionScopes(f.Scopes, jwtx.DefaultScopes))
	if err != nil {
		return nil, fmt.Errorf("authflow: request device code: %w", err)
	}
	fmt.Fprintf(f.Out, "Visit %s and enter %s\n", dc.VerificationURIComplete, dc.UserCode)

	fatal := false
	poll := func() (*idp.TokenResponse, error) {
		tok, err := f.IdP.PollDeviceToken(ctx, dc.DeviceCode)
		if err != nil {
			var idpErr *idp.Error
			if errors.As(err, &idpErr) && !idpErr.Retryable() {
				fatal = true
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		switch {
		case tok.AccessToken == "":
			fatal = true
			return nil, backoff.Permanent(errors.New("authflow: no access token in device response"))
		case tok.RefreshToken == "":
			fatal = true
			return nil, backoff.Permanent(errors.New("authflow: no refresh token in device response"))
		}
		if _, err := f.Verifier.VerifyIDToken(ctx, tok.IDToken); err != nil {
			fatal = true
			return nil, backoff.Permanent(err)
		}
		return tok, nil
	}

	tok, err := backoff.Retry(ctx, poll,
		backoff.WithBackOff(backoff.NewConstantBackOff(f.Interval)),
		backoff.WithMaxTries(f.MaxAttempts),
		// MaxTries is the real ceiling; the elapsed limit only has to outlast it.
		backoff.WithMaxElapsedTime(f.Interval*time.Duration(f.MaxAttempts)+time.Minute),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug("device authorization pending", "error", err, "next", next)
		}),
	)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case fatal:
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", ErrDeviceFlowTimeout, err)
		}
	}

	creds := &credstore.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IDToken:      tok.IDToken,
		ExpiresAt:    tok.ExpiresAt(f.now()),
	}
	if err := f.Store.Save(ctx, creds); err != nil {
		return nil, fmt.Errorf("authflow: save credentials: %w", err)
	}
	log.Info("device login complete")
	return creds, nil
}

// Refresh returns the stored credentials, refreshing them first when the
// access token has expired. A failed refresh means the operator has to log
// in again.
func (f *DeviceFlow) Refresh(ctx context.Context) (*credstore.Credentials, error) {
	f.defaults()

	creds, err := f.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !creds.Expired(f.now()) {
		return creds, nil
	}
	return f.refresh(ctx, creds)
}

// Identity returns the verified identity of the stored credentials. An
// expired ID token is renewed with the refresh token even while the access
// token is still valid.
func (f *DeviceFlow) Identity(ctx context.Context) (*jwtx.IDToken, error) {
	creds, err := f.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	id, err := f.Verifier.VerifyIDToken(ctx, creds.IDToken)
	if !errors.Is(err, jwtx.ErrExpired) || creds.RefreshToken == "" {
		return id, err
	}

	slogx.FromContext(ctx).Debug("id token expired, refreshing")
	if creds, err = f.refresh(ctx, creds); err != nil {
		return nil, err
	}
	return f.Verifier.VerifyIDToken(ctx, creds.IDToken)
}

func (f *DeviceFlow) refresh(ctx context.Context, creds *credstore.Credentials) (*credstore.Credentials, error) {
	tok, err := f.IdP.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		return nil, unauthorized("Session expired", err)
	}
	if _, err := f.Verifier.VerifyAccessToken(ctx, tok.AccessToken); err != nil {
		return nil, err
	}

	creds.AccessToken = tok.AccessToken
	creds.ExpiresAt = tok.ExpiresAt(f.now())
	if tok.RefreshToken != "" {
		creds.RefreshToken = tok.RefreshToken
	}
	if tok.IDToken != "" {
		creds.IDToken = tok.IDToken
	}
	if err := f.Store.Save(ctx, creds); err != nil {
		return nil, fmt.Errorf("authflow: save credentials: %w", err)
	}
	return creds, nil
}

// Logout forgets the stored credentials.
func (f *DeviceFlow) Logout(ctx context.Context) error {
	return f.Store.Delete(ctx)
}
