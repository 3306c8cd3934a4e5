// ABOUTME: Entry point for coven-client, a command line client for the coven gateway API
// ABOUTME: Loads config, wires the session stack and dispatches subcommands

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/2389/coven-client/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const usage = `Usage: coven-client <command> [flags]

Commands:
  status                         Show the session state and stored token details
  login --access T --refresh T   Store a token pair and bootstrap the session
  logout                         Forget the stored token pair
  refresh                        Exchange the refresh token for a new pair
  bootstrap                      Fetch the account and app config
  me [--name N] [--email E]      Show or update the account profile
  prompts [--category C] [--shuffle]
                                 List recording prompts
  history [--delete ID] [ID]     List recordings, show one or delete one
  upload --filename F --size N   Create and complete an upload
  logs [--html] [--clear] [--out PATH]
                                 Export or clear the network log
  watch [--interval D]           Follow session state and keep it bootstrapped
  version                        Print the version

The config file is read from $COVEN_CLIENT_CONFIG, then
$XDG_CONFIG_HOME/coven/client.yaml, then ~/.config/coven/client.yaml.
`

var errUsage = errors.New("usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, ok := commands[args[0]]
	if !ok {
		if args[0] == "version" {
			fmt.Fprintln(stdout, version)
			return nil
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return errUsage
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, stderr)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	err = cmd(ctx, &cli{app: a, out: stdout}, args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}
