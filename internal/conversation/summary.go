package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/llm"
	"github.com/soyeahso/aide/internal/logging"
)

// Summary failure policies.
const (
	// FailureSuppress keeps the previous summary and logs the error.
	FailureSuppress = "suppress"
	// FailureSurface keeps the previous summary and returns the error.
	FailureSurface = "surface"
)

// SummarizerConfig controls summary refreshes.
type SummarizerConfig struct {
	Turns   int    // recent turns to read; 0 means SummaryTurns
	Words   int    // word cap; 0 means SummaryWords
	Failure string // FailureSuppress or FailureSurface
}

// Summarizer rewrites the rolling summary from the latest turns.
type Summarizer struct {
	client llm.Client
	req    func(system string, msgs []llm.Message) llm.CompletionRequest
	cfg    SummarizerConfig
	log    *logging.Logger
}

// NewSummarizer creates a Summarizer that calls client. req builds the
// completion request carrying generation parameters; nil uses a bare one.
func NewSummarizer(client llm.Client, req func(system string, msgs []llm.Message) llm.CompletionRequest, cfg SummarizerConfig, log *logging.Logger) *Summarizer {
	if cfg.Turns <= 0 {
		cfg.Turns = SummaryTurns
	}
	if cfg.Words <= 0 {
		cfg.Words = SummaryWords
	}
	if cfg.Failure == "" {
		cfg.Failure = FailureSuppress
	}
	if req == nil {
		req = func(system string, msgs []llm.Message) llm.CompletionRequest {
			return llm.CompletionRequest{System: system, Messages: msgs}
		}
	}
	return &Summarizer{client: client, req: req, cfg: cfg, log: log.Sub("conversation.summary")}
}

// Instruction is the fixed request sent with every refresh.
func (s *Summarizer) Instruction() string {
	return fmt.Sprintf("Rewrite the conversation summary so it covers the previous summary and the recent turns below. "+
		"Keep names, decisions, open tasks and user preferences. Reply with the summary only, in %d words or fewer.", s.cfg.Words)
}

// Refresh asks the model for a new summary of recentTurns folded into prev.
// On failure the previous summary is returned; the error is returned too
// only under FailureSurface.
func (s *Summarizer) Refresh(ctx context.Context, recentTurns []domain.Turn, prev string) (string, error) {
	turns := lastN(recentTurns, s.cfg.Turns)
	if len(turns) == 0 {
		return prev, nil
	}

	var b strings.Builder
	if p := strings.TrimSpace(prev); p != "" {
		b.WriteString("Previous summary:\n")
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	b.WriteString("Recent turns:\n")
	b.WriteString(formatTurns(turns))

	req := s.req(s.Instruction(), []llm.Message{{Role: llm.RoleUser, Content: b.String()}})
	resp, err := s.client.Complete(ctx, req)
	if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
		err = fmt.Errorf("empty summary")
	}
	if err != nil {
		if s.cfg.Failure == FailureSurface {
			return prev, fmt.Errorf("refreshing summary: %w", err)
		}
		s.log.Warn().Err(err).Msg("summary refresh failed, keeping previous summary")
		return prev, nil
	}

	summary := limitWords(strings.TrimSpace(resp.Content), s.cfg.Words)
	s.log.Debug().Int("turns", len(turns)).Int("words", len(strings.Fields(summary))).Msg("summary refreshed")
	return summary, nil
}

// limitWords truncates s to at most n whitespace-separated words.
func limitWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}
