package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Credential stores selectable through KZ_CREDENTIAL_STORE.
const (
	StoreKeyring = "keyring"
	StoreFile    = "file"
)

type Config struct {
	AuthURL  string `env:"KZ_AUTH_URL"`
	ClientID string `env:"KZ_CLIENT_ID"`
	Audience string `env:"KZ_AUDIENCE"`

	CredentialStore string `env:"KZ_CREDENTIAL_STORE" envDefault:"keyring"`
	// CredentialFile defaults to ~/.kilo-zone/credentials.db.
	CredentialFile string `env:"KZ_CREDENTIAL_FILE"`

	PollInterval time.Duration `env:"KZ_POLL_INTERVAL" envDefault:"5s"`
	LogLevel     string        `env:"KZ_LOG_LEVEL" envDefault:"warn"`
}

// LoadConfig reads a .env file when present, then the environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	switch cfg.CredentialStore {
	case StoreKeyring, StoreFile:
	default:
		return Config{}, fmt.Errorf("unknown KZ_CREDENTIAL_STORE %q", cfg.CredentialStore)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AuthURL == "" || c.ClientID == "" {
		return errors.New("KZ_AUTH_URL and KZ_CLIENT_ID must be set")
	}
	return nil
}

func (c Config) credentialFile() (string, error) {
	if c.CredentialFile != "" {
		return c.CredentialFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	return filepath.Join(home, ".kilo-zone", "credentials.db"), nil
}
