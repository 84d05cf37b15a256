package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiloOhm/kilo-zone/pkg/credstore"
)

func newLoginCmd(cfg Config) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in with the device code flow",
		Long: `Log in by approving a one-time code in the browser. The tokens are kept in
the OS keyring, or in a local file when KZ_CREDENTIAL_STORE=file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, cfg, func(s *session) error {
				creds, err := s.flow.Run(cmd.Context())
				if err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				return printIdentity(cmd, s, creds.IDToken)
			})
		},
	}
}

func newLogoutCmd(cfg Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, cfg, func(s *session) error {
				if err := s.flow.Logout(cmd.Context()); err != nil {
					return fmt.Errorf("logout failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(cfg Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, cfg, func(s *session) error {
				id, err := s.flow.Identity(cmd.Context())
				if errors.Is(err, credstore.ErrNotFound) {
					return errNotLoggedIn
				}
				if err != nil {
					return fmt.Errorf("stored identity is no longer valid, run 'kz login': %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Authenticated as %s (%s)\n", id.DisplayName(), id.Email)
				return nil
			})
		},
	}
}

func newTokenCmd(cfg Config) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token",
		Long:  `Print a valid access token, refreshing it first when it has expired.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, cfg, func(s *session) error {
				creds, err := s.current(cmd)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), creds.AccessToken)
				return nil
			})
		},
	}
}

func printIdentity(cmd *cobra.Command, s *session, rawIDToken string) error {
	id, err := s.flow.Verifier.VerifyIDToken(cmd.Context(), rawIDToken)
	if err != nil {
		return fmt.Errorf("stored identity is no longer valid, run 'kz login': %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Authenticated as %s (%s)\n", id.DisplayName(), id.Email)
	return nil
}
