// Package voice turns a continuous speech transcript into commands addressed
// to the assistant by its wake word.
package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/soyeahso/aide/internal/logging"
)

// Match modes.
const (
	// MatchWord requires the wake word to stand alone: "nova" matches
	// "Nova, call Sam" but not "casanova".
	MatchWord = "word"
	// MatchSubstring accepts the wake word anywhere in the transcript.
	MatchSubstring = "substring"
)

// Detector finds the wake word in a transcript and extracts the command
// that follows it.
type Detector struct {
	wakeWord string
	mode     string
	re       *regexp.Regexp
	log      *logging.Logger
}

// NewDetector creates a Detector for wakeWord. Matching is case-insensitive.
// An empty mode means MatchWord.
func NewDetector(wakeWord, mode string, log *logging.Logger) (*Detector, error) {
	wakeWord = strings.TrimSpace(wakeWord)
	if wakeWord == "" {
		return nil, fmt.Errorf("wake word is empty")
	}
	if mode == "" {
		mode = MatchWord
	}

	// Inner whitespace in a multi-word wake word matches any run of spaces.
	// Group 1 is the wake word itself. \b only knows ASCII word characters, so
	// word boundaries are spelled out with Unicode classes.
	pattern := `(` + strings.Join(quoteFields(wakeWord), `\s+`) + `)`
	switch mode {
	case MatchWord:
		pattern = `(?i)(?:^|` + nonWord + `)` + pattern + `(?:$|` + nonWord + `)`
	case MatchSubstring:
		pattern = `(?i)` + pattern
	default:
		return nil, fmt.Errorf("unknown match mode %q (want %q or %q)", mode, MatchWord, MatchSubstring)
	}

	return &Detector{
		wakeWord: wakeWord,
		mode:     mode,
		re:       regexp.MustCompile(pattern),
		log:      log.Sub("voice"),
	}, nil
}

const nonWord = `[^\p{L}\p{N}_]`

func quoteFields(s string) []string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	return fields
}

// WakeWord returns the configured wake word.
func (d *Detector) WakeWord() string { return d.wakeWord }

// Mode returns the match mode.
func (d *Detector) Mode() string { return d.mode }

// Scan looks for the wake word in transcript. When found, it returns the
// text after the first occurrence with leading punctuation trimmed, and true.
// The command is empty when the wake word ends the transcript.
func (d *Detector) Scan(transcript string) (string, bool) {
	loc := d.re.FindStringSubmatchIndex(transcript)
	if loc == nil {
		return "", false
	}
	rest := transcript[loc[3]:]
	return strings.TrimSpace(strings.TrimLeft(rest, " \t,.:;!?-")), true
}

// Handler receives each command heard by Listen.
type Handler func(ctx context.Context, command string) error

// Listen reads a line-oriented transcript stream from r and calls handler for
// every line that addresses the assistant with a non-empty command. It
// returns when r is exhausted, ctx is done, or handler fails.
func (d *Detector) Listen(ctx context.Context, r io.Reader, handler Handler) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("reading transcript: %w", err)
					}
				default:
				}
				return nil
			}
			cmd, heard := d.Scan(line)
			if !heard {
				continue
			}
			if cmd == "" {
				d.log.Debug().Msg("wake word heard without a command")
				continue
			}
			d.log.Info().Str("command", cmd).Msg("voice command")
			if err := handler(ctx, cmd); err != nil {
				return err
			}
		}
	}
}
