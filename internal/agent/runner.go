package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/aide/internal/conversation"
	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/llm"
	"github.com/soyeahso/aide/internal/logging"
)

// RunnerConfig configures the chat runner.
type RunnerConfig struct {
	Persona     domain.Persona
	PromptTurns int // recent turns placed in the prompt; 0 means conversation.PromptTurns
	Credential  string
}

// Reply is the outcome of one chat exchange.
type Reply struct {
	Text      string        `json:"text"`
	Model     string        `json:"model,omitempty"`
	Usage     llm.Usage     `json:"usage"`
	Duration  time.Duration `json:"duration"`
	UserTurn  domain.Turn   `json:"userTurn"`
	ModelTurn domain.Turn   `json:"modelTurn"`
	Summary   string        `json:"summary,omitempty"`

	// SummaryError is set when the summary refresh failed and the
	// configured policy surfaces failures.
	SummaryError string `json:"summaryError,omitempty"`
}

// StreamCallback receives each text delta during SendStream.
type StreamCallback func(event llm.StreamEvent)

// Runner holds the main conversation: it builds the prompt from persona,
// summary and recent turns, calls the model, records both turns and keeps
// the summary current.
type Runner struct {
	cfg        RunnerConfig
	client     llm.Client
	pool       *llm.Pool
	memory     *conversation.Memory
	summarizer *conversation.Summarizer
	log        *logging.Logger

	// mu serialises exchanges so turns are never interleaved.
	mu sync.Mutex

	personaMu sync.RWMutex
	persona   domain.Persona
}

// NewRunner creates a chat runner that fails over across the pool's models.
func NewRunner(cfg RunnerConfig, pool *llm.Pool, memory *conversation.Memory, summarizer *conversation.Summarizer, log *logging.Logger) *Runner {
	if cfg.PromptTurns <= 0 || cfg.PromptTurns > conversation.PromptTurns {
		cfg.PromptTurns = conversation.PromptTurns
	}
	return &Runner{
		cfg:        cfg,
		client:     NewFailoverClient(pool, cfg.Credential, pool.Models(), log),
		pool:       pool,
		memory:     memory,
		summarizer: summarizer,
		persona:    cfg.Persona,
		log:        log.Sub("agent.runner"),
	}
}

// Persona returns the persona currently in use.
func (r *Runner) Persona() domain.Persona {
	r.personaMu.RLock()
	defer r.personaMu.RUnlock()
	return r.persona
}

// SetPersona swaps the persona used for subsequent exchanges.
func (r *Runner) SetPersona(p domain.Persona) {
	r.personaMu.Lock()
	defer r.personaMu.Unlock()
	r.persona = p
	r.log.Info().Str("persona", p.Name).Msg("persona updated")
}

// Send runs one exchange and returns the model's reply.
func (r *Runner) Send(ctx context.Context, input string, attachments []domain.Attachment) (*Reply, error) {
	return r.exchange(ctx, input, attachments, func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return r.client.Complete(ctx, req)
	})
}

// SendStream is Send with text deltas forwarded to cb as they arrive.
func (r *Runner) SendStream(ctx context.Context, input string, attachments []domain.Attachment, cb StreamCallback) (*Reply, error) {
	return r.exchange(ctx, input, attachments, func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		ch, err := r.client.Stream(ctx, req)
		if err != nil {
			return nil, err
		}

		var full strings.Builder
		var final *llm.CompletionResponse
		for evt := range ch {
			switch evt.Type {
			case "delta":
				full.WriteString(evt.Content)
				if cb != nil {
					cb(evt)
				}
			case "done":
				final = evt.Response
			case "error":
				return nil, fmt.Errorf("stream error: %s", evt.Error)
			}
		}

		if final == nil {
			final = &llm.CompletionResponse{Model: r.pool.Models()[0]}
		}
		if final.Content == "" {
			final.Content = full.String()
		}
		return final, nil
	})
}

func (r *Runner) exchange(ctx context.Context, input string, attachments []domain.Attachment, call func(llm.CompletionRequest) (*llm.CompletionResponse, error)) (*Reply, error) {
	input = strings.TrimSpace(input)
	if input == "" && len(attachments) == 0 {
		return nil, errors.New("message is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()

	recent, err := r.memory.Recent(r.cfg.PromptTurns)
	if err != nil {
		return nil, fmt.Errorf("loading recent turns: %w", err)
	}
	summary, err := r.memory.Summary()
	if err != nil {
		return nil, fmt.Errorf("loading summary: %w", err)
	}

	in := conversation.PersonaInput(r.Persona())
	in.UserInput = input
	in.Summary = summary
	in.RecentTurns = recent
	in.Attachments = attachments
	prompt := conversation.BuildPrompt(in)

	r.log.Info().
		Int("historyLen", len(recent)).
		Int("attachments", len(attachments)).
		Msg("processing message")

	resp, err := call(r.pool.Request("", []llm.Message{{Role: llm.RoleUser, Content: prompt}}))
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		return nil, fmt.Errorf("LLM completion: %w", err)
	}

	// Turns are recorded only for completed exchanges, so a failed message
	// never reaches later prompts.
	userTurn, err := r.memory.Append(ctx, domain.RoleUser, turnText(input, attachments))
	if err != nil {
		return nil, err
	}
	modelTurn, err := r.memory.Append(ctx, domain.RoleModel, resp.Content)
	if err != nil {
		return nil, err
	}

	reply := &Reply{
		Text:      resp.Content,
		Model:     resp.Model,
		Usage:     resp.Usage,
		UserTurn:  userTurn,
		ModelTurn: modelTurn,
		Summary:   summary,
	}

	if r.summarizer != nil {
		r.refreshSummary(ctx, reply)
	}

	reply.Duration = time.Since(start)
	r.log.Info().
		Str("model", reply.Model).
		Int("inputTokens", reply.Usage.InputTokens).
		Int("outputTokens", reply.Usage.OutputTokens).
		Dur("duration", reply.Duration).
		Msg("response generated")
	return reply, nil
}

func (r *Runner) refreshSummary(ctx context.Context, reply *Reply) {
	recent, err := r.memory.Recent(conversation.SummaryTurns)
	if err != nil {
		reply.SummaryError = err.Error()
		return
	}

	next, err := r.summarizer.Refresh(ctx, recent, reply.Summary)
	if err != nil {
		reply.SummaryError = err.Error()
		return
	}
	if next == reply.Summary {
		return
	}
	if err := r.memory.SetSummary(ctx, next); err != nil {
		reply.SummaryError = err.Error()
		return
	}
	reply.Summary = next
}

// turnText is what gets logged for the user's side of an exchange.
func turnText(input string, attachments []domain.Attachment) string {
	if len(attachments) == 0 {
		return input
	}
	names := make([]string, len(attachments))
	for i, a := range attachments {
		names[i] = a.Name
	}
	note := "[attached: " + strings.Join(names, ", ") + "]"
	if input == "" {
		return note
	}
	return input + "\n" + note
}
