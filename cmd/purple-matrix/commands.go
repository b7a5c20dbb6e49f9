// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"
)

func runLogin(ctx context.Context, args []string, std streams) error {
	var common commonFlags
	var passwordFile string
	var prompt, stay bool

	flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
	common.register(flagSet)
	flagSet.StringVar(&passwordFile, "password-file", "", "read the password from this file, or - for the first line of stdin")
	flagSet.BoolVarP(&prompt, "password", "p", false, "prompt for a password instead of using SSO")
	flagSet.BoolVar(&stay, "stay", false, "keep the session syncing until interrupted")

	accountID, ok, err := parseAccountCommand(flagSet, args, std.stderr,
		"Restores the saved session, or signs in with a password (--password, --password-file) or SSO.")
	if !ok {
		return err
	}

	password, err := readPassword(passwordFile, prompt, std)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	a, err := newApp(common, accountID, std)
	if err != nil {
		if password != nil {
			password.Close()
		}
		return err
	}
	defer a.close()

	if err := a.connect(ctx, password, interactive); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	a.printConnected()
	if !stay {
		return nil
	}
	return a.follow(ctx)
}

func (a *app) printConnected() {
	session, ok := a.manager.Registry().Get(a.accountID)
	if !ok {
		return
	}
	fmt.Fprintf(a.std.stdout, "Connected %s as %s (data in %s)\n", a.accountID, session.UserID, session.DataDir)
}

// follow prints sync progress until ctx ends or the session is lost.
func (a *app) follow(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-a.events:
			if e.accountID != a.accountID {
				continue
			}
			switch e.kind {
			case eventSync:
				fmt.Fprintf(a.std.stdout, "synced %s: %d joined, %d invited, %d left\n",
					e.update.NextBatch, e.update.JoinedRooms, e.update.InvitedRooms, e.update.LeftRooms)
			case eventFailed:
				return errors.New(e.message)
			}
		}
	}
}

func runLogout(ctx context.Context, args []string, std streams) error {
	var common commonFlags
	flagSet := pflag.NewFlagSet("logout", pflag.ContinueOnError)
	common.register(flagSet)

	accountID, ok, err := parseAccountCommand(flagSet, args, std.stderr,
		"Invalidates the saved session's access token on the server. The next login signs in again.")
	if !ok {
		return err
	}
	a, err := newApp(common, accountID, std)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connect(ctx, nil, restoreOnly); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if err := a.manager.Logout(ctx, accountID); err != nil {
		return err
	}
	fmt.Fprintf(std.stdout, "Logged out %s\n", accountID)
	return nil
}

func runDestroy(ctx context.Context, args []string, std streams) error {
	var common commonFlags
	flagSet := pflag.NewFlagSet("destroy", pflag.ContinueOnError)
	common.register(flagSet)

	accountID, ok, err := parseAccountCommand(flagSet, args, std.stderr,
		"Logs the saved session out on the server and deletes it locally. Without a usable\nsession only the local copy is deleted.")
	if !ok {
		return err
	}
	a, err := newApp(common, accountID, std)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connect(ctx, nil, restoreOnly); err != nil {
		if ctx.Err() != nil {
			return err
		}
		a.logger.Warn("no live session, deleting the local copy only", "account_id", accountID, "error", err)
		if err := a.sessions.Delete(accountID, a.dataDir); err != nil {
			return err
		}
		fmt.Fprintf(std.stdout, "Deleted the saved session for %s\n", accountID)
		return nil
	}
	if err := a.manager.DestroySession(ctx, accountID); err != nil {
		return err
	}
	fmt.Fprintf(std.stdout, "Logged out %s and deleted the saved session\n", accountID)
	return nil
}

func runDeactivate(ctx context.Context, args []string, std streams) error {
	var common commonFlags
	var erase bool
	flagSet := pflag.NewFlagSet("deactivate", pflag.ContinueOnError)
	common.register(flagSet)
	flagSet.BoolVar(&erase, "erase", false, "also delete the saved session and the account's data directory")

	accountID, ok, err := parseAccountCommand(flagSet, args, std.stderr,
		"Logs the account out. With --erase its saved session and local data are removed.")
	if !ok {
		return err
	}
	a, err := newApp(common, accountID, std)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connect(ctx, nil, restoreOnly); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	if err := a.manager.DeactivateAccount(ctx, erase); err != nil {
		return err
	}
	if erase {
		fmt.Fprintf(std.stdout, "Deactivated %s and erased %s\n", accountID, a.dataDir)
	} else {
		fmt.Fprintf(std.stdout, "Deactivated %s\n", accountID)
	}
	return nil
}
