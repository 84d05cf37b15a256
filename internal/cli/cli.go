// Package cli implements the kz command line client.
package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiloOhm/kilo-zone/pkg/authflow"
	"github.com/kiloOhm/kilo-zone/pkg/cache/drivers/memory"
	"github.com/kiloOhm/kilo-zone/pkg/credstore"
	"github.com/kiloOhm/kilo-zone/pkg/idp"
	"github.com/kiloOhm/kilo-zone/pkg/jwtx"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

var errNotLoggedIn = errors.New("not logged in, run 'kz login'")

// Version is set at build time via ldflags.
var Version = "dev"

// NewRootCmd builds the kz command tree.
func NewRootCmd(cfg Config) *cobra.Command {
	root := &cobra.Command{
		Use:               "kz",
		Short:             "kz is the command line client for kilo-zone",
		Version:           Version,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger := slogx.New(slogx.Config{
				Service: "kz",
				Version: Version,
				Env:     "cli",
				Level:   cfg.LogLevel,
				Format:  "text",
				Output:  cmd.ErrOrStderr(),
			})
			cmd.SetContext(slogx.WithContext(cmd.Context(), logger))
		},
	}

	root.AddCommand(
		newLoginCmd(cfg),
		newLogoutCmd(cfg),
		newWhoamiCmd(cfg),
		newTokenCmd(cfg),
	)
	return root
}

// session is the device flow bound to the configured credential store.
type session struct {
	flow  *authflow.DeviceFlow
	close func() error
}

func openSession(cfg Config, out io.Writer) (*session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	client := idp.New(idp.Config{
		BaseURL:  cfg.AuthURL,
		ClientID: cfg.ClientID,
		Audience: cfg.Audience,
	})
	verifier := jwtx.NewVerifier(
		jwtx.NewKeySource(memory.New(time.Minute), nil),
		client.Issuer(),
		[]string{cfg.Audience},
		jwtx.WithIDTokenAudiences(cfg.ClientID),
		jwtx.WithIntrospector(client),
	)

	return &session{
		flow: &authflow.DeviceFlow{
			IdP:      client,
			Verifier: verifier,
			Store:    store,
			Interval: cfg.PollInterval,
			Scopes:   []jwtx.Scope{jwtx.ScopeUsePages},
			Out:      out,
		},
		close: closeStore,
	}, nil
}

func openStore(cfg Config) (credstore.Store, func() error, error) {
	if cfg.CredentialStore != StoreFile {
		return credstore.NewKeyring(cfg.ClientID), func() error { return nil }, nil
	}
	path, err := cfg.credentialFile()
	if err != nil {
		return nil, nil, err
	}
	f, err := credstore.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening credential file: %w", err)
	}
	return f, f.Close, nil
}

// withSession opens the session for the duration of fn.
func withSession(cmd *cobra.Command, cfg Config, fn func(*session) error) error {
	s, err := openSession(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s)
}

// current returns valid credentials, refreshing them when needed.
func (s *session) current(cmd *cobra.Command) (*credstore.Credentials, error) {
	creds, err := s.flow.Refresh(cmd.Context())
	if errors.Is(err, credstore.ErrNotFound) {
		return nil, errNotLoggedIn
	}
	return creds, err
}
