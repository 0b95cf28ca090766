package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/aide/internal/voice"
	"github.com/spf13/cobra"
)

func newVoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Wake-word voice commands",
	}
	cmd.AddCommand(newVoiceListenCmd())
	return cmd
}

func newVoiceListenCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Read transcript lines from stdin and answer the ones addressed to the assistant",
		Long: "Pipe a speech-to-text transcript in, one utterance per line. Lines that contain " +
			"the persona's wake word are sent to the assistant with the wake word removed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if !dryRun {
				if err := a.requireKey(); err != nil {
					return err
				}
			}

			d, err := voice.NewDetector(a.runner.Persona().Wake(), a.cfg.Voice.Match, a.log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(cmd.ErrOrStderr(), "listening for %q (%s match)\n", d.WakeWord(), d.Mode())
			err = d.Listen(ctx, cmd.InOrStdin(), func(ctx context.Context, command string) error {
				if dryRun {
					fmt.Fprintln(out, command)
					return nil
				}
				callCtx, cancel := timeoutCtx(ctx, a.cfg)
				defer cancel()
				reply, err := a.runner.Send(callCtx, command, nil)
				if err != nil {
					// Keep listening; one failed exchange is not fatal.
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					return nil
				}
				fmt.Fprintf(out, "%s: %s\n", a.runner.Persona().Name, reply.Text)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print extracted commands instead of sending them")
	return cmd
}
