// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// purple-matrix signs Matrix accounts in and out from the command line
// using the same session lifecycle as the chat client plugin: saved
// sessions are restored, stale local data is reset, and SSO logins go
// through a loopback callback.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/purple-matrix/lib/version"
)

const binaryName = "purple-matrix"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], streams{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr})
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// streams are the process's standard streams, replaced in tests.
type streams struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, std streams) error {
	if len(args) < 1 {
		printUsage(std.stderr)
		return fmt.Errorf("subcommand required")
	}

	subcommand, rest := args[0], args[1:]
	switch subcommand {
	case "login":
		return runLogin(ctx, rest, std)
	case "logout":
		return runLogout(ctx, rest, std)
	case "destroy":
		return runDestroy(ctx, rest, std)
	case "deactivate":
		return runDeactivate(ctx, rest, std)
	case "version", "--version":
		version.Print(std.stdout, binaryName)
		return nil
	case "-h", "--help", "help":
		printUsage(std.stdout)
		return nil
	default:
		printUsage(std.stderr)
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: %s <subcommand> [flags] <account>

Subcommands:
  login       Restore the saved session or sign in with a password or SSO
  logout      Invalidate the saved session's access token on the server
  destroy     Log out on the server and delete the saved session
  deactivate  Log out and optionally erase the account's local data
  version     Print version information

Run '%s <subcommand> --help' for subcommand flags.
`, binaryName, binaryName)
}

// commonFlags are accepted by every account subcommand.
type commonFlags struct {
	configPath string
	logLevel   string
	homeserver string
	dataDir    string
}

func (c *commonFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.configPath, "config", "", "config file (default $PURPLE_MATRIX_CONFIG, then built-in defaults)")
	flagSet.StringVar(&c.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flagSet.StringVar(&c.homeserver, "homeserver", "", "homeserver name or URL (default: derived from the account)")
	flagSet.StringVar(&c.dataDir, "data-dir", "", "account working directory (default: <data_root>/matrix_rust_data/<account>)")
}

// parseAccountCommand parses args for a subcommand that takes exactly
// one account name. ok is false with a nil error when help was
// printed.
func parseAccountCommand(flagSet *pflag.FlagSet, args []string, w io.Writer, summary string) (accountID string, ok bool, err error) {
	flagSet.SetOutput(w)
	flagSet.Usage = func() {
		fmt.Fprintf(w, "Usage: %s %s [flags] <account>\n\n%s\n\nFlags:\n", binaryName, flagSet.Name(), summary)
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return "", false, nil
		}
		return "", false, err
	}
	switch flagSet.NArg() {
	case 0:
		return "", false, fmt.Errorf("%s: account name is required", flagSet.Name())
	case 1:
		return flagSet.Arg(0), true, nil
	default:
		return "", false, fmt.Errorf("%s: unexpected argument: %s", flagSet.Name(), flagSet.Arg(1))
	}
}
