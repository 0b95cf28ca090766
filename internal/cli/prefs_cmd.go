package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/store"
	"github.com/spf13/cobra"
)

func newPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read and write stored preferences (" + strings.Join(store.Keys, ", ") + ")",
	}

	cmd.AddCommand(newPrefsGetCmd())
	cmd.AddCommand(newPrefsSetCmd())
	cmd.AddCommand(newPrefsUnsetCmd())
	return cmd
}

func newPrefsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print one stored value, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireKV(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				all, err := a.kv.All()
				if err != nil {
					return err
				}
				for _, k := range store.Keys {
					v, ok := all[k]
					switch {
					case !ok:
						fmt.Fprintf(out, "%-22s (unset)\n", k)
					case k == store.KeyCredential:
						fmt.Fprintf(out, "%-22s (set)\n", k)
					default:
						fmt.Fprintf(out, "%-22s %s\n", k, v)
					}
				}
				return nil
			}

			key := args[0]
			raw, ok, err := a.kv.GetRaw(key)
			if err != nil {
				return err
			}
			switch {
			case !ok:
				fmt.Fprintln(out, "(unset)")
			case key == store.KeyCredential:
				fmt.Fprintln(out, "(set)")
			default:
				fmt.Fprintln(out, string(raw))
			}
			return nil
		},
	}
}

func newPrefsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value; anything that is not JSON is stored as a string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if key == store.KeySummary {
				return fmt.Errorf("%s is managed by the conversation", key)
			}
			raw := prefValue(args[1])
			if key == store.KeyPersona {
				var p domain.Persona
				if err := json.Unmarshal(raw, &p); err != nil || p.Name == "" {
					return fmt.Errorf("persona must be a JSON object with at least a name")
				}
			}

			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireKV(); err != nil {
				return err
			}

			if err := a.kv.SetRaw(key, raw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", key)
			return nil
		},
	}
}

func newPrefsUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireKV(); err != nil {
				return err
			}

			if err := a.kv.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}

// prefValue keeps valid JSON as is and quotes everything else.
func prefValue(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	data, _ := json.Marshal(s)
	return data
}
