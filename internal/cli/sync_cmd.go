package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/aide/internal/cloudsync"
	"github.com/soyeahso/aide/internal/domain"
	"github.com/spf13/cobra"
)

// syncTimeout bounds a single sync command.
const syncTimeout = time.Minute

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy the conversation and preferences to and from the cloud document store",
	}

	cmd.AddCommand(newSyncPushCmd())
	cmd.AddCommand(newSyncPullCmd())
	cmd.AddCommand(newSyncWorkspaceCmd())
	cmd.AddCommand(newSyncCommentCmd())
	return cmd
}

// openSyncer opens the app and a Syncer for it. The caller closes the app.
func openSyncer(ctx context.Context) (*app, *cloudsync.Syncer, error) {
	a, err := loadApp()
	if err != nil {
		return nil, nil, err
	}
	if !a.cfg.Sync.Enabled {
		a.Close()
		return nil, nil, errors.New("cloud sync is disabled: set sync.enabled and sync.projectId")
	}
	s, err := cloudsync.New(ctx, a.cfg.Sync, a.log)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, s, nil
}

func newSyncPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Upload the conversation, persona and preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			a, s, err := openSyncer(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := a.memory.Snapshot()
			if err != nil {
				return err
			}
			if err := s.PushConversation(ctx, conv); err != nil {
				return err
			}

			prefs := domain.DefaultPreferences()
			if a.kv != nil {
				if prefs, err = a.kv.Preferences(); err != nil {
					return err
				}
			}
			if err := s.PushUser(ctx, a.runner.Persona(), prefs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d turns for %s\n", len(conv.Turns), s.UserID())
			return nil
		},
	}
}

func newSyncPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Replace the local conversation with the synced copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			a, s, err := openSyncer(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			conv, err := s.PullConversation(ctx)
			if err != nil {
				return err
			}
			data, err := json.Marshal(conv)
			if err != nil {
				return err
			}
			if err := a.memory.Import(ctx, bytes.NewReader(data)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pulled %d turns\n", len(conv.Turns))
			return nil
		},
	}
}

func newSyncWorkspaceCmd() *cobra.Command {
	var (
		name    string
		members []string
	)
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Create or update the shared workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			a, s, err := openSyncer(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ws, err := s.UpsertWorkspace(ctx, cloudsync.Workspace{Name: name, Members: members})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workspace %s (%s): %s\n", ws.ID, ws.Name, strings.Join(ws.Members, ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "workspace display name")
	cmd.Flags().StringSliceVar(&members, "members", nil, "member user ids")
	return cmd
}

func newSyncCommentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "comment <turn-id> <text>",
		Short: "Leave a comment on a turn in the shared workspace",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			defer cancel()
			a, s, err := openSyncer(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := s.AddComment(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Comment %s added\n", c.ID)
			return nil
		},
	}
}
