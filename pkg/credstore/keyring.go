package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "kilo-zone"

// Keyring stores credentials in the OS keychain.
type Keyring struct {
	user string
}

var _ Store = (*Keyring)(nil)

// NewKeyring keys the entry by user, typically the identity provider host.
func NewKeyring(user string) *Keyring {
	return &Keyring{user: user}
}

func (k *Keyring) Load(context.Context) (*Credentials, error) {
	raw, err := keyring.Get(keyringService, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}

	var c Credentials
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decoding keyring entry: %w", err)
	}
	return &c, nil
}

func (k *Keyring) Save(_ context.Context, c *Credentials) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, k.user, string(raw)); err != nil {
		return fmt.Errorf("writing keyring: %w", err)
	}
	return nil
}

func (k *Keyring) Delete(context.Context) error {
	err := keyring.Delete(keyringService, k.user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting keyring entry: %w", err)
	}
	return nil
}
