package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/soyeahso/aide/internal/domain"
	"github.com/spf13/cobra"
)

func newConversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Inspect and manage the conversation memory",
	}

	cmd.AddCommand(newConversationHistoryCmd())
	cmd.AddCommand(newConversationSummaryCmd())
	cmd.AddCommand(newConversationSearchCmd())
	cmd.AddCommand(newConversationExportCmd())
	cmd.AddCommand(newConversationImportCmd())
	cmd.AddCommand(newConversationClearCmd())
	return cmd
}

func newConversationHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the turn log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var turns []domain.Turn
			if limit > 0 {
				turns, err = a.memory.Recent(limit)
			} else {
				turns, err = a.memory.History()
			}
			if err != nil {
				return err
			}
			printTurns(cmd.OutOrStdout(), turns)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "only the last n turns")
	return cmd
}

func newConversationSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the rolling conversation summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := a.memory.Summary()
			if err != nil {
				return err
			}
			if summary == "" {
				summary = "(no summary yet)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func newConversationSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find turns containing every word of query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			turns, err := a.memory.Search(args[0], limit)
			if err != nil {
				return err
			}
			if len(turns) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matches")
				return nil
			}
			printTurns(cmd.OutOrStdout(), turns)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum matches")
	return cmd
}

func newConversationExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write the conversation as JSON (default: a timestamped file under ~/.aide/exports, - for stdout)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			target := filepath.Join(paths.Exports, "conversation-"+time.Now().UTC().Format("20060102-150405")+".json")
			if len(args) == 1 {
				target = args[0]
			}
			if target == "-" {
				return a.memory.Export(cmd.OutOrStdout())
			}

			if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
			if err != nil {
				return err
			}
			if err := a.memory.Export(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", target)
			return nil
		},
	}
}

func newConversationImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the conversation with an exported one (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			if err := a.memory.Import(context.Background(), r); err != nil {
				return err
			}
			turns, err := a.memory.History()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d turns\n", len(turns))
			return nil
		},
	}
}

func newConversationClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every turn and the summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.memory.Clear(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Conversation cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	return cmd
}

func printTurns(w io.Writer, turns []domain.Turn) {
	for _, t := range turns {
		fmt.Fprintf(w, "[%s] %s: %s\n", t.Timestamp.Local().Format("2006-01-02 15:04"), t.Role, t.Text)
	}
}
