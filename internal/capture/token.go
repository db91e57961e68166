package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// TokenStore persists the portal restore token between negotiations.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
}

// FileTokenStore keeps the restore token in a plaintext file.
type FileTokenStore struct {
	Path string
}

// Load returns the stored token. A missing file is reported as an error
// wrapping fs.ErrNotExist.
func (s FileTokenStore) Load() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Save replaces the stored token.
func (s FileTokenStore) Save(token string) error {
	if token == "" {
		return errors.New("restore token is empty")
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".restore_token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}
