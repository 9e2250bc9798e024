package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"smokeFreeAPI/config"
	"smokeFreeAPI/internal/keyring"
	"smokeFreeAPI/internal/sync"
)

// Context is handed to every command's Run method by kong.
type Context struct {
	Config *config.Client
	Store  sync.Storage
	Engine *sync.Engine
	Remote *sync.HTTPRemote
}

// Token resolves the bearer token: environment first, then the OS keyring.
func (c *Context) Token() (string, error) {
	if c.Config != nil && c.Config.Token != "" {
		return c.Config.Token, nil
	}
	token, err := keyring.GetToken()
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("not logged in, run `quitctl login <token>` first")
	}
	return token, err
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
