package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const tokenFileName = "cins_jwt"

// ErrNoToken means no login token has been stored yet.
var ErrNoToken = errors.New("no stored token, login first")

// DefaultTokenPath is the token file inside the system temporary directory.
func DefaultTokenPath() string {
	return filepath.Join(os.TempDir(), tokenFileName)
}

// TokenFile persists the access token between CLI invocations.
type TokenFile struct {
	Path string
}

func (f TokenFile) path() string {
	if strings.TrimSpace(f.Path) == "" {
		return DefaultTokenPath()
	}
	return f.Path
}

// Save writes token readable by the current user only.
func (f TokenFile) Save(token string) error {
	if err := os.WriteFile(f.path(), []byte(token), 0o600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Load returns the stored token or ErrNoToken.
func (f TokenFile) Load() (string, error) {
	contents, err := os.ReadFile(f.path())
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	token := strings.TrimSpace(string(contents))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}
