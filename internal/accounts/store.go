// Package accounts is a JSON-file credential store for linked social
// accounts. It implements the persistence collaborator the publishing core
// specifies but does not own: save a linked account, list accounts, and fold
// refreshed credentials back in after a publish.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blacktop/syndicate/internal/oauth"
	"github.com/blacktop/syndicate/internal/social"
)

// ErrNotFound is returned when no stored account matches the given reference.
var ErrNotFound = errors.New("account not found")

// Store reads and writes accounts.json under the user config directory.
type Store struct {
	path string
	mu   sync.Mutex
}

type storeFile struct {
	Accounts []oauth.Account `json:"accounts"`
}

// DefaultPath returns the standard accounts file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "syndicate", "accounts.json"), nil
}

// NewStore opens a store at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// SaveAccount persists a linked account, replacing any existing entry for the
// same provider and external id.
func (s *Store) SaveAccount(ctx context.Context, account oauth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range file.Accounts {
		if existing.Provider == account.Provider && existing.ExternalID == account.ExternalID {
			account.AccountRef = existing.AccountRef
			file.Accounts[i] = account
			replaced = true
			break
		}
	}
	if !replaced {
		file.Accounts = append(file.Accounts, account)
	}

	return s.write(file)
}

// List returns every stored account.
func (s *Store) List() ([]oauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return nil, err
	}
	return file.Accounts, nil
}

// Find resolves an account by account ref, display name, or bare provider
// name (the latter only when a single account exists for that provider).
func (s *Store) Find(ref string) (oauth.Account, error) {
	all, err := s.List()
	if err != nil {
		return oauth.Account{}, err
	}

	ref = strings.TrimSpace(ref)
	var providerMatches []oauth.Account
	for _, account := range all {
		if account.AccountRef == ref || account.DisplayName == ref {
			return account, nil
		}
		if string(account.Provider) == strings.ToLower(ref) {
			providerMatches = append(providerMatches, account)
		}
	}
	if len(providerMatches) == 1 {
		return providerMatches[0], nil
	}
	if len(providerMatches) > 1 {
		return oauth.Account{}, fmt.Errorf("%q matches %d accounts, use the account ref", ref, len(providerMatches))
	}
	return oauth.Account{}, ErrNotFound
}

// UpdateCredentials replaces the credential bag for an account, used to fold
// RefreshedCredentials from a publish result back into storage.
func (s *Store) UpdateCredentials(ctx context.Context, accountRef string, creds social.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.read()
	if err != nil {
		return err
	}

	for i, account := range file.Accounts {
		if account.AccountRef == accountRef {
			file.Accounts[i].Credentials = creds.Clone()
			return s.write(file)
		}
	}
	return ErrNotFound
}

func (s *Store) read() (*storeFile, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &storeFile{}, nil
		}
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	return &file, nil
}

func (s *Store) write(file *storeFile) error {
	raw, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write accounts file: %w", err)
	}
	return nil
}
