package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/aide/internal/config"
	"github.com/soyeahso/aide/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show aide status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "aide %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:  not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			a, err := openApp(cfg, paths, log)
			if err != nil {
				fmt.Fprintf(out, "Storage: error opening: %v\n", err)
				return nil
			}
			defer a.Close()

			key := "not set"
			if a.pool.HasCredential() {
				key = "set"
			}
			fmt.Fprintf(out, "Model:   %s (key %s)\n", strings.Join(a.pool.Models(), " -> "), key)

			p := a.runner.Persona()
			fmt.Fprintf(out, "Persona: %s, %s (wake word %q)\n", p.Name, p.Role, p.WakeWord)

			storage := cfg.Storage.Driver
			if a.db != nil {
				storage += " " + paths.DatabasePath(cfg.Storage)
			}
			turns, err := a.memory.History()
			if err != nil {
				return err
			}
			summary, err := a.memory.Summary()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Memory:  %s, %d turns, summary %d words\n", storage, len(turns), len(strings.Fields(summary)))

			fmt.Fprintf(out, "Agents:  %d of %d active\n",
				len(a.dispatcher.Roster().Active()), len(a.dispatcher.Roster().Agents()))

			if cfg.Sync.Enabled {
				fmt.Fprintf(out, "Sync:    project=%s workspace=%s\n", cfg.Sync.ProjectID, cfg.Sync.WorkspaceID)
			} else {
				fmt.Fprintln(out, "Sync:    disabled")
			}

			fmt.Fprintf(out, "Gateway: port=%d bind=%s auth=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
