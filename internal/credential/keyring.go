// Package credential keeps mail account passwords in the system keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/pepperpark/mailcopy/internal/mailstore"
)

const serviceName = "mailcopy"

// Store reads and writes passwords keyed by user@host:port.
type Store struct {
	ring keyring.Keyring
}

// Open returns a store backed by the first keyring backend available.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailcopy/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailcopy-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// New wraps an already opened keyring.
func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Lookup returns the password stored for ep. ok is false when none is stored.
func (s *Store) Lookup(ep *mailstore.Endpoint) (password string, ok bool, err error) {
	item, err := s.ring.Get(ep.CredentialKey())
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting credential %q: %w", ep.CredentialKey(), err)
	}
	return string(item.Data), true, nil
}

// Set stores password for ep.
func (s *Store) Set(ep *mailstore.Endpoint, password string) error {
	err := s.ring.Set(keyring.Item{
		Key:         ep.CredentialKey(),
		Data:        []byte(password),
		Label:       "mailcopy " + ep.CredentialKey(),
		Description: "IMAP password",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", ep.CredentialKey(), err)
	}
	return nil
}

// Delete removes the password stored for ep.
func (s *Store) Delete(ep *mailstore.Endpoint) error {
	if err := s.ring.Remove(ep.CredentialKey()); err != nil {
		return fmt.Errorf("deleting credential %q: %w", ep.CredentialKey(), err)
	}
	return nil
}
