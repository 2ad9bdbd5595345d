// Package credentials stores personal access tokens in the OS keychain,
// falling back to a permission-restricted file on headless systems.
package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/zalando/go-keyring"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

const (
	// KeyringService is the keychain service name.
	KeyringService = "shipwright"

	// Well-known credential names.
	ADOToken    = "ado-pat"
	GitHubToken = "github-token"

	cacheDir  = ".config/shipwright"
	cacheFile = "credentials.json" //nolint:gosec // file name, not a credential
)

// Store persists named secrets.
type Store interface {
	// Get returns the secret, or "" with a nil error when none is stored.
	Get(name string) (string, error)
	Set(name, value string) error
	Delete(name string) error
	// Backend names where secrets live, for status output.
	Backend() string
}

// NewStore returns a keychain-backed store when the keychain is usable,
// otherwise a file store under ~/.config/shipwright.
func NewStore() Store {
	check := KeyringService + "-check"
	if err := keyring.Set(check, "availability", "ok"); err == nil {
		_ = keyring.Delete(check, "availability")
		return &KeychainStore{service: KeyringService}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return NewFileStore(filepath.Join(home, cacheDir, cacheFile))
}

// KeychainStore uses macOS Keychain, Linux Secret Service or Windows
// Credential Manager.
type KeychainStore struct {
	service string
}

// NewKeychainStore returns a keychain store for service.
func NewKeychainStore(service string) *KeychainStore {
	return &KeychainStore{service: service}
}

// Get retrieves a secret from the keychain.
func (k *KeychainStore) Get(name string) (string, error) {
	v, err := keyring.Get(k.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", shiperrors.NewConfigErrorWithCause(name, "failed to read from keychain", err)
	}
	return v, nil
}

// Set stores a secret in the keychain.
func (k *KeychainStore) Set(name, value string) error {
	if err := keyring.Set(k.service, name, value); err != nil {
		return shiperrors.NewConfigErrorWithCause(name, "failed to save to keychain", err)
	}
	return nil
}

// Delete removes a secret from the keychain. Missing entries are not an error.
func (k *KeychainStore) Delete(name string) error {
	err := keyring.Delete(k.service, name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return shiperrors.NewConfigErrorWithCause(name, "failed to clear keychain", err)
	}
	return nil
}

// Backend implements Store.
func (k *KeychainStore) Backend() string {
	return "keychain"
}

// FileStore keeps secrets in a 0600 JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a file store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, shiperrors.NewConfigErrorWithCause("credentials", "failed to read credentials file", err)
	}

	secrets := map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, shiperrors.NewConfigErrorWithCause("credentials", "failed to parse credentials file", err)
	}
	return secrets, nil
}

func (f *FileStore) save(secrets map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return shiperrors.NewConfigErrorWithCause("credentials", "failed to create config directory", err)
	}
	data, err := json.Marshal(secrets)
	if err != nil {
		return shiperrors.NewConfigErrorWithCause("credentials", "failed to serialize credentials", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return shiperrors.NewConfigErrorWithCause("credentials", "failed to write credentials file", err)
	}
	return nil
}

// Get retrieves a secret from the file.
func (f *FileStore) Get(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		return "", err
	}
	return secrets[name], nil
}

// Set stores a secret in the file.
func (f *FileStore) Set(name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		return err
	}
	secrets[name] = value
	return f.save(secrets)
}

// Delete removes a secret, deleting the file when it becomes empty.
func (f *FileStore) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	secrets, err := f.load()
	if err != nil {
		return err
	}
	delete(secrets, name)
	if len(secrets) == 0 {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return shiperrors.NewConfigErrorWithCause("credentials", "failed to remove credentials file", err)
		}
		return nil
	}
	return f.save(secrets)
}

// Backend implements Store.
func (f *FileStore) Backend() string {
	return f.path
}
