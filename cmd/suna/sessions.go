package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"suna-chat/internal/remotestore"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format); err != nil {
				return err
			}
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				rows := toRows(d.manager.ListSessions(ctx), pendingSet(d.manager.PendingSessions(ctx)))
				return renderSessions(cmd.OutOrStdout(), format, rows)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session with its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format); err != nil {
				return err
			}
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				session, err := d.resolve(ctx, args[0])
				if err != nil {
					return err
				}
				return renderSession(cmd.OutOrStdout(), format, session)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatTable, "output format: table, json or yaml")
	return cmd
}

func newRenameCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <title>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				session, err := d.resolve(ctx, args[0])
				if err != nil {
					return err
				}
				renamed, err := d.manager.Rename(ctx, session.ID, strings.Join(args[1:], " "))
				if err != nil {
					return explain("rename", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", shortID(renamed.ID), renamed.Title)
				return nil
			})
		},
	}
}

func newPinCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pin <session-id>",
		Short: "Pin or unpin a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				session, err := d.resolve(ctx, args[0])
				if err != nil {
					return err
				}
				toggled, err := d.manager.TogglePin(ctx, session.ID)
				if err != nil {
					return explain("pin", err)
				}
				state := "Unpinned"
				if toggled.IsPinned {
					state = "Pinned"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, shortID(toggled.ID))
				return nil
			})
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session here and on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				session, err := d.resolve(ctx, args[0])
				if err != nil {
					return err
				}
				if err := d.manager.Delete(ctx, session.ID); err != nil {
					return explain("delete", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", shortID(session.ID))
				return nil
			})
		},
	}
}

func newFavCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fav <session-id> <message-index>",
		Short: "Toggle the favorite flag on a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("message index %q is not a number", args[1])
			}
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				session, err := d.resolve(ctx, args[0])
				if err != nil {
					return err
				}
				updated, err := d.manager.ToggleFavorite(ctx, session.ID, index)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderMessage(index, updated.Messages[index]))
				return nil
			})
		},
	}
}

// explain turns remote rejections of foreground operations into user-facing errors.
func explain(op string, err error) error {
	switch {
	case errors.Is(err, remotestore.ErrForbidden):
		return fmt.Errorf("%s failed: this session belongs to another account", op)
	case errors.Is(err, remotestore.ErrNotFound):
		return fmt.Errorf("%s failed: the session no longer exists on the server", op)
	case errors.Is(err, remotestore.ErrUnauthorized):
		return fmt.Errorf("%s failed: sign-in expired, run `suna login`", op)
	default:
		return fmt.Errorf("%s failed: %w", op, err)
	}
}
