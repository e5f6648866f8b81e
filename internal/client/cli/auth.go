package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/mbelkin/courierdesk/internal/client/api"
	"github.com/mbelkin/courierdesk/internal/client/auth"
	"github.com/mbelkin/courierdesk/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for the account fields and attempts to create a new
// account. On success the manager chains into a login with the same
// credentials, so the user ends up authenticated.
//
// The password byte slices are securely wiped before returning.
func (a *App) Register(ctx context.Context) error {
	username, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	displayName, err := getSimpleText(a.reader, "Enter display name", os.Stdout)
	if err != nil {
		return err
	}
	phone, err := getSimpleText(a.reader, "Enter phone (optional)", os.Stdout)
	if err != nil {
		return err
	}
	address, err := getSimpleText(a.reader, "Enter address (optional)", os.Stdout)
	if err != nil {
		return err
	}

	req := api.RegisterRequest{
		Username:        username,
		Password:        string(password),
		PasswordConfirm: string(confirm),
		DisplayName:     displayName,
		Phone:           phone,
		Address:         address,
	}
	if err := a.auth.Register(ctx, req); err != nil {
		printlnFn(auth.DisplayMessage(err))
		return err
	}

	printlnFn("Success!")
	return nil
}

// Login prompts for credentials and authenticates through the manager.
// The password is securely wiped before returning.
func (a *App) Login(ctx context.Context) error {
	username, err := getSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Login(ctx, username, string(password)); err != nil {
		printlnFn(auth.DisplayMessage(err))
		return err
	}

	printlnFn("Logged in.")
	return nil
}

// Logout tears down the session. Local state is cleared even when the
// server call fails, so this effectively cannot leave the user logged in.
func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		printlnFn(auth.DisplayMessage(err))
		return err
	}
	printlnFn("Logged out.")
	return nil
}

// WhoAmI prints the current user from the observable state.
func (a *App) WhoAmI(ctx context.Context) error {
	state, user := a.auth.State()
	if user == nil {
		printlnFn("Not logged in.")
		return nil
	}
	printlnFn(fmt.Sprintf("%s (%s), role %s, state %s", user.DisplayName, user.Username, user.Role, state))
	if user.SenderName != "" {
		printlnFn(fmt.Sprintf("default sender: %s %s", user.SenderName, user.SenderPhone))
	}
	return nil
}

// Refresh re-fetches the current user. Failures are logged by the manager
// and never destroy the session.
func (a *App) Refresh(ctx context.Context) error {
	a.auth.RefreshCurrentUser(ctx)
	return a.WhoAmI(ctx)
}

// CheckUsername asks the server whether a username is free.
func (a *App) CheckUsername(ctx context.Context) error {
	username, err := getSimpleText(a.reader, "Enter username to check", os.Stdout)
	if err != nil {
		return err
	}

	available, err := a.auth.CheckUsernameAvailable(ctx, username)
	if err != nil {
		printlnFn(auth.DisplayMessage(err))
		return err
	}
	if available {
		printlnFn(fmt.Sprintf("%q is available", username))
	} else {
		printlnFn(fmt.Sprintf("%q is taken", username))
	}
	return nil
}
