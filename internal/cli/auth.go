package cli

import (
	"errors"
	"fmt"

	"smokeFreeAPI/internal/keyring"
)

type LoginCmd struct {
	Token string `arg:"" help:"API bearer token."`
}

func (c *LoginCmd) Run(ctx *Context) error {
	if !keyring.IsAvailable() {
		return fmt.Errorf("%w, set QUITCTL_TOKEN instead", keyring.ErrKeyringUnavailable)
	}
	if err := keyring.SetToken(c.Token); err != nil {
		return err
	}
	fmt.Println("Token saved to the OS keyring.")
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx *Context) error {
	err := keyring.DeleteToken()
	if errors.Is(err, keyring.ErrNotFound) {
		fmt.Println("Not logged in.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}
