package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"suna-chat/internal/changefeed"
	"suna-chat/internal/eventbus"
	"suna-chat/internal/realtime"
)

func newSendCmd(opts *rootOptions) *cobra.Command {
	var sessionRef string
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a message and print the reply",
		Long: `Send a message to the assistant. Without --session a new session is started.
The user message is saved even when the assistant call fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				sessionID := ""
				if sessionRef != "" {
					session, err := d.resolve(ctx, sessionRef)
					if err != nil {
						return err
					}
					sessionID = session.ID
				}

				session, err := d.conversation().Send(ctx, sessionID, text)
				if session.ID != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), idStyle.Render("session "+shortID(session.ID)))
				}
				if err != nil {
					return err
				}
				last := session.Messages[len(session.Messages)-1]
				fmt.Fprintln(cmd.OutOrStdout(), renderMessage(len(session.Messages)-1, last))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&sessionRef, "session", "s", "", "continue this session (id or prefix)")
	return cmd
}

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push pending sessions and pull the server copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				if !d.signedIn() {
					return errNotSignedIn
				}
				flushed, err := d.manager.SyncNow(ctx)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "some pending sessions did not sync: %v\n", err)
				}
				sessions := d.manager.LoadAllSessions(ctx)
				pending := len(d.manager.PendingSessions(ctx))
				fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d pending, %d session(s) on this device, %d still pending\n",
					flushed, len(sessions), pending)
				return nil
			})
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow changes made on other devices until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(cmd, opts, func(ctx context.Context, d *device) error {
				if !d.signedIn() {
					return errNotSignedIn
				}
				out := cmd.OutOrStdout()

				d.manager.LoadAllSessions(ctx)
				feed, err := changefeed.NewWSFeed(d.auth.Server, func() string { return d.auth.Token },
					d.cfg.Realtime.Timeout(), d.log.Named("wsfeed"))
				if err != nil {
					return err
				}

				sub := d.manager.Bus().Subscribe(func(change eventbus.Change) {
					switch change.Kind {
					case eventbus.SessionSaved:
						if s, ok := d.manager.Get(ctx, change.SessionID); ok {
							fmt.Fprintf(out, "%s %s %s\n", dateStyle.Render("updated"), idStyle.Render(shortID(s.ID)), titleStyle.Render(s.Title))
						}
					case eventbus.SessionDeleted:
						fmt.Fprintf(out, "%s %s\n", dateStyle.Render("deleted"), idStyle.Render(shortID(change.SessionID)))
					}
				})
				defer sub.Unsubscribe()

				bridge := realtime.NewBridge(feed, d.client, d.manager, d.log.Named("realtime"))
				bridge.OnState(func(st changefeed.State) {
					d.log.Info("realtime state", zap.String("state", string(st)))
					fmt.Fprintln(cmd.ErrOrStderr(), headerStyle.Render("realtime: "+string(st)))
				})

				if err := bridge.Run(ctx, d.auth.UserID); err != nil {
					return fmt.Errorf("watch failed: %w", err)
				}
				if bridge.State() == changefeed.StateTimedOut || bridge.State() == changefeed.StateError {
					return errors.New("realtime subscription ended: " + string(bridge.State()))
				}
				return nil
			})
		},
	}
}
