package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	service     = "quitctl"
	defaultUser = "api-token"
)

var (
	// ErrNotFound is returned when no token is stored
	ErrNotFound = errors.New("token not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// GetToken returns the bearer token used for API calls.
func GetToken() (string, error) {
	token, err := keyring.Get(service, defaultUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return token, nil
}

func SetToken(token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	if err := keyring.Set(service, defaultUser, token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

func DeleteToken() error {
	err := keyring.Delete(service, defaultUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// IsAvailable is a best-effort probe; a missing entry still means the
// keyring itself works.
func IsAvailable() bool {
	_, err := keyring.Get(service, "availability-probe")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}
