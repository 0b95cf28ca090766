package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/aide/internal/agent"
	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/llm"
	"github.com/soyeahso/aide/internal/upload"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		stream  bool
		attach  []string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant",
		Long: "Send one message and print the reply. Without a message, read one message " +
			"per line from stdin until EOF or /quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireKey(); err != nil {
				return err
			}

			attachments := make([]domain.Attachment, 0, len(attach))
			for _, path := range attach {
				att, err := upload.Load(path, a.cfg.Upload.MaxBytes)
				if err != nil {
					return err
				}
				attachments = append(attachments, att)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			send := func(message string, atts []domain.Attachment) error {
				callCtx, cancel := timeoutCtx(ctx, a.cfg)
				defer cancel()

				var reply *agent.Reply
				var err error
				if stream {
					reply, err = a.runner.SendStream(callCtx, message, atts, func(evt llm.StreamEvent) {
						fmt.Fprint(out, evt.Content)
					})
					fmt.Fprintln(out)
				} else {
					reply, err = a.runner.Send(callCtx, message, atts)
					if err == nil {
						fmt.Fprintln(out, reply.Text)
					}
				}
				if err != nil {
					return err
				}
				printReplyFooter(cmd.ErrOrStderr(), reply, verbose)
				return nil
			}

			if len(args) > 0 {
				return send(strings.Join(args, " "), attachments)
			}
			return chatLoop(ctx, cmd.InOrStdin(), cmd.ErrOrStderr(), attachments, send)
		},
	}

	cmd.Flags().BoolVar(&stream, "stream", false, "stream the reply as it is generated")
	cmd.Flags().StringArrayVar(&attach, "attach", nil, "attach a text file (repeatable)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print model, token usage and the summary after each reply")

	return cmd
}

// chatLoop sends each non-empty input line. Attachments go with the first
// message only.
func chatLoop(ctx context.Context, in io.Reader, prompt io.Writer, attachments []domain.Attachment, send func(string, []domain.Attachment) error) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	interactive := in == os.Stdin
	for {
		if interactive {
			fmt.Fprint(prompt, "> ")
		}
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}
		if err := send(line, attachments); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(prompt, "error: %v\n", err)
			continue
		}
		attachments = nil
	}
}

func printReplyFooter(w io.Writer, r *agent.Reply, verbose bool) {
	if r.SummaryError != "" {
		fmt.Fprintf(w, "[summary not updated: %s]\n", r.SummaryError)
	}
	if !verbose {
		return
	}
	fmt.Fprintf(w, "[model=%s tokens=%d+%d duration=%s]\n",
		r.Model, r.Usage.InputTokens, r.Usage.OutputTokens, r.Duration.Round(time.Millisecond))
	if r.Summary != "" {
		fmt.Fprintf(w, "[summary] %s\n", r.Summary)
	}
}
