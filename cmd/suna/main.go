package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://127.0.0.1:8080"

type rootOptions struct {
	server    string
	localPath string
	logFile   string
	timeout   time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := rootOptions{}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	root := &cobra.Command{
		Use:   "suna",
		Short: "Local-first chat client with server sync",
		Long: `suna keeps your chat sessions on this device and syncs them with a suna-chat server.

Sessions are saved locally first; pushes to the server are retried and queued while the
server is unreachable. Signed-out use stays on this device only.

Quick Start:
  suna register --email you@example.com --password ********
  suna send "What should I cook tonight?"
  suna list
  suna watch`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.server, "server", os.Getenv("SUNA_SERVER"), "suna-chat server URL (default "+defaultServer+" or the one used at login)")
	root.PersistentFlags().StringVar(&opts.localPath, "local", filepath.Join(home, ".suna", "local.db"), "path of the local session store")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", filepath.Join(home, ".suna", "suna.log"), "log file; empty disables logging")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for each server request")

	root.AddCommand(
		newRegisterCmd(&opts),
		newLoginCmd(&opts),
		newLogoutCmd(&opts),
		newListCmd(&opts),
		newShowCmd(&opts),
		newSendCmd(&opts),
		newRenameCmd(&opts),
		newPinCmd(&opts),
		newDeleteCmd(&opts),
		newFavCmd(&opts),
		newSyncCmd(&opts),
		newWatchCmd(&opts),
	)
	return root
}

// withDevice opens the local device for one command and flushes it afterwards.
func withDevice(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, d *device) error) (err error) {
	ctx := cmd.Context()
	d, err := openDevice(ctx, *opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := d.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, d)
}
