package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringMedium stores the record in the OS-native secret store: macOS
// Keychain, Windows Credential Manager, or the Linux Secret Service.
type KeyringMedium struct {
	service string
	account string
}

var _ Medium = (*KeyringMedium)(nil)

// NewKeyringMedium creates a KeyringMedium keyed by the fixed
// application/account identifier pair.
func NewKeyringMedium(service string, account string) (*KeyringMedium, error) {
	if service == "" {
		return nil, fmt.Errorf("credential_store.keyring: service cannot be empty")
	}
	if account == "" {
		return nil, fmt.Errorf("credential_store.keyring: account cannot be empty")
	}
	return &KeyringMedium{service: service, account: account}, nil
}

// Read returns the payload from the system keyring.
func (medium *KeyringMedium) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	payload, err := keyring.Get(medium.service, medium.account)
	if err != nil {
		return "", err
	}
	if payload == "" {
		return "", fmt.Errorf("credential_store.keyring: empty payload for service %s", medium.service)
	}
	return payload, nil
}

// Write persists the payload to the system keyring.
func (medium *KeyringMedium) Write(ctx context.Context, payload string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return keyring.Set(medium.service, medium.account, payload)
}

// Delete removes the payload from the system keyring.
func (medium *KeyringMedium) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := keyring.Delete(medium.service, medium.account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
