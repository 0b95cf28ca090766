package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/aide/internal/agent"
	"github.com/spf13/cobra"
)

// dispatchTick paces the progress indicator.
const dispatchTick = 500 * time.Millisecond

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "List agents and dispatch tasks to them",
	}

	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentDispatchCmd())
	return cmd
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the agent roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			roster := a.dispatcher.Roster()
			agents := roster.Agents()
			if len(agents) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No agents (no API key configured)")
				return nil
			}
			for _, ag := range agents {
				st, _ := roster.Stats(ag.Name)
				mark := " "
				if st.Active {
					mark = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-12s %-10s %s\n",
					mark, ag.Name, ag.Type, strings.Join(ag.Capabilities, ", "))
			}
			return nil
		},
	}
}

func newAgentDispatchCmd() *cobra.Command {
	var (
		taskContext string
		names       []string
	)

	cmd := &cobra.Command{
		Use:   "dispatch <task>",
		Short: "Send a task to several agents in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireKey(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if len(names) == 0 {
				names = a.dispatcher.Roster().Active()
			}

			progress := agent.StartProgress(dispatchTick, 5, func(pct int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\rworking... %3d%%", pct)
			})
			results, err := a.dispatcher.Dispatch(ctx, strings.Join(args, " "), taskContext, names)
			progress.Stop()
			fmt.Fprint(cmd.ErrOrStderr(), "\r                \r")
			if err != nil {
				return err
			}

			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "== %s (%s) ==\n%s\n\n", r.Agent, r.Type, r.Result)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&taskContext, "context", "", "background passed to every agent")
	cmd.Flags().StringSliceVar(&names, "agents", nil, "agents to use (default: the active agents)")
	return cmd
}
