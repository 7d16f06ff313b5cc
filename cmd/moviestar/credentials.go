package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/alpyxn/moviestar/internal/identity"
)

const (
	credentialsDir  = "moviestar"
	credentialsFile = "credentials.json"
)

// credentialStore keeps the CLI's single credential on disk, readable by
// the current user only.
type credentialStore struct {
	path string
}

// defaultCredentialsPath returns the credentials file under the user's
// config directory.
func defaultCredentialsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, credentialsDir, credentialsFile), nil
}

// Load returns the saved credential, or nil when nobody is logged in.
func (s *credentialStore) Load() (*identity.Credential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var cred identity.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to decode credentials %s: %w", s.path, err)
	}
	if cred.AccessToken == "" {
		return nil, nil
	}
	return &cred, nil
}

// Save replaces the saved credential. A nil credential removes the file.
func (s *credentialStore) Save(cred *identity.Credential) error {
	if cred == nil {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove credentials: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	// Write then rename so a crash never leaves a truncated file behind.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}
