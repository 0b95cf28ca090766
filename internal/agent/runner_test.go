package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/soyeahso/aide/internal/config"
	"github.com/soyeahso/aide/internal/conversation"
	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPersona() domain.Persona {
	return domain.Persona{
		Name:        "Nova",
		Role:        "Operations assistant",
		Personality: "calm",
		Style:       "brief",
		Skills:      []string{"planning", "scheduling"},
	}
}

func newTestRunner(t *testing.T, chat llm.Client, summary llm.Client, failure string) (*Runner, *conversation.Memory) {
	t.Helper()
	mem := conversation.NewMemory(conversation.NewMemoryStore(), nil, silentLog())
	var s *conversation.Summarizer
	if summary != nil {
		s = conversation.NewSummarizer(summary, nil, conversation.SummarizerConfig{Failure: failure}, silentLog())
	}
	r := NewRunner(RunnerConfig{Persona: testPersona()}, poolFor(chat), mem, s, silentLog())
	return r, mem
}

func TestRunnerSend(t *testing.T) {
	var prompts []string
	chat := &llm.MockClient{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			prompts = append(prompts, promptOf(req))
			return &llm.CompletionResponse{Content: "Reply " + string(rune('A'+len(prompts)-1)), Model: req.Model}, nil
		},
	}
	r, mem := newTestRunner(t, chat, nil, "")
	ctx := context.Background()

	reply, err := r.Send(ctx, "  first question  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "Reply A", reply.Text)
	assert.Equal(t, config.DefaultModel, reply.Model)
	assert.Equal(t, "first question", reply.UserTurn.Text)
	assert.Equal(t, domain.RoleModel, reply.ModelTurn.Role)

	_, err = r.Send(ctx, "second question", nil)
	require.NoError(t, err)

	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "You are Nova.")
	assert.NotContains(t, prompts[0], "Recent conversation:", "nothing said yet")
	assert.True(t, strings.HasSuffix(prompts[0], "User: first question"))
	assert.Contains(t, prompts[1], "Recent conversation:\nUser: first question\nAssistant: Reply A")
	assert.True(t, strings.HasSuffix(prompts[1], "User: second question"))

	history, err := mem.History()
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, "Reply B", history[3].Text)
}

func TestRunnerSendRejectsEmpty(t *testing.T) {
	chat := &llm.MockClient{}
	r, mem := newTestRunner(t, chat, nil, "")

	_, err := r.Send(context.Background(), "   ", nil)
	assert.Error(t, err)
	assert.Equal(t, 0, chat.Calls())

	history, _ := mem.History()
	assert.Empty(t, history)
}

func TestRunnerSendWithAttachments(t *testing.T) {
	var prompt string
	chat := &llm.MockClient{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			prompt = promptOf(req)
			return &llm.CompletionResponse{Content: "Read it."}, nil
		},
	}
	r, _ := newTestRunner(t, chat, nil, "")

	att := []domain.Attachment{{Name: "notes.txt", MimeType: "text/plain", Content: "buy milk"}}
	reply, err := r.Send(context.Background(), "", att)
	require.NoError(t, err)
	assert.Equal(t, "[attached: notes.txt]", reply.UserTurn.Text)
	assert.Contains(t, prompt, "Attached files:\n--- notes.txt (text/plain) ---\nbuy milk")
}

func TestRunnerSendFailureRecordsNothing(t *testing.T) {
	chat := &llm.MockClient{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProviderError{Provider: "gemini", Code: 400, Message: "API key not valid"}
		},
	}
	r, mem := newTestRunner(t, chat, nil, "")

	_, err := r.Send(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM completion")
	assert.Contains(t, err.Error(), "API key not valid")

	history, _ := mem.History()
	assert.Empty(t, history)

	// The next exchange's prompt does not carry the failed message.
	var prompt string
	chat.CompleteFunc = func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		prompt = req.Messages[len(req.Messages)-1].Content
		return &llm.CompletionResponse{Content: "hi there"}, nil
	}
	_, err = r.Send(context.Background(), "second try", nil)
	require.NoError(t, err)
	assert.NotContains(t, prompt, "hello")

	history, _ = mem.History()
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, "second try", history[0].Text)
	assert.Equal(t, domain.RoleModel, history[1].Role)
}

func TestRunnerSendStream(t *testing.T) {
	r, mem := newTestRunner(t, &llm.MockClient{}, nil, "")

	var mu sync.Mutex
	var deltas []string
	reply, err := r.SendStream(context.Background(), "stream please", nil, func(evt llm.StreamEvent) {
		mu.Lock()
		deltas = append(deltas, evt.Content)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mock ", "stream response"}, deltas)
	assert.Equal(t, "mock stream response", reply.Text)

	history, _ := mem.History()
	require.Len(t, history, 2)
	assert.Equal(t, "mock stream response", history[1].Text)
}

func TestRunnerSendStreamError(t *testing.T) {
	chat := &llm.MockClient{
		StreamFunc: func(context.Context, llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			ch := make(chan llm.StreamEvent, 2)
			ch <- llm.StreamEvent{Type: "delta", Content: "par"}
			ch <- llm.StreamEvent{Type: "error", Error: "connection reset"}
			close(ch)
			return ch, nil
		},
	}
	r, _ := newTestRunner(t, chat, nil, "")

	_, err := r.SendStream(context.Background(), "hi", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRunnerRefreshesSummary(t *testing.T) {
	summarizer := &llm.MockClient{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: "User asked about the launch."}, nil
		},
	}
	r, mem := newTestRunner(t, &llm.MockClient{}, summarizer, conversation.FailureSurface)

	reply, err := r.Send(context.Background(), "what about the launch?", nil)
	require.NoError(t, err)
	assert.Equal(t, "User asked about the launch.", reply.Summary)
	assert.Empty(t, reply.SummaryError)

	stored, err := mem.Summary()
	require.NoError(t, err)
	assert.Equal(t, "User asked about the launch.", stored)
	assert.Equal(t, 1, summarizer.Calls())
}

func TestRunnerSummaryFailurePolicy(t *testing.T) {
	failing := func() *llm.MockClient {
		return &llm.MockClient{
			CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return nil, errors.New("quota exhausted")
			},
		}
	}

	t.Run("surface", func(t *testing.T) {
		r, mem := newTestRunner(t, &llm.MockClient{}, failing(), conversation.FailureSurface)
		require.NoError(t, mem.SetSummary(context.Background(), "old summary"))

		reply, err := r.Send(context.Background(), "hi", nil)
		require.NoError(t, err, "the reply itself still succeeds")
		assert.Equal(t, "mock response", reply.Text)
		assert.Contains(t, reply.SummaryError, "quota exhausted")
		assert.Equal(t, "old summary", reply.Summary)

		stored, _ := mem.Summary()
		assert.Equal(t, "old summary", stored)
	})

	t.Run("suppress", func(t *testing.T) {
		r, mem := newTestRunner(t, &llm.MockClient{}, failing(), conversation.FailureSuppress)
		require.NoError(t, mem.SetSummary(context.Background(), "old summary"))

		reply, err := r.Send(context.Background(), "hi", nil)
		require.NoError(t, err)
		assert.Empty(t, reply.SummaryError)
		assert.Equal(t, "old summary", reply.Summary)
	})
}

func TestRunnerSetPersona(t *testing.T) {
	var prompt string
	chat := &llm.MockClient{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			prompt = promptOf(req)
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	r, _ := newTestRunner(t, chat, nil, "")
	assert.Equal(t, "Nova", r.Persona().Name)

	r.SetPersona(domain.Persona{Name: "Atlas", Role: "Research lead"})
	_, err := r.Send(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "You are Atlas.")
	assert.NotContains(t, prompt, "Nova")
}

func TestRunnerPromptTurnsClamp(t *testing.T) {
	mem := conversation.NewMemory(conversation.NewMemoryStore(), nil, silentLog())
	r := NewRunner(RunnerConfig{PromptTurns: 500}, poolFor(&llm.MockClient{}), mem, nil, silentLog())
	assert.Equal(t, conversation.PromptTurns, r.cfg.PromptTurns)

	r = NewRunner(RunnerConfig{PromptTurns: 4}, poolFor(&llm.MockClient{}), mem, nil, silentLog())
	assert.Equal(t, 4, r.cfg.PromptTurns)
}

func TestTurnText(t *testing.T) {
	att := []domain.Attachment{{Name: "a.txt"}, {Name: "b.md"}}
	assert.Equal(t, "hello", turnText("hello", nil))
	assert.Equal(t, "[attached: a.txt, b.md]", turnText("", att))
	assert.Equal(t, "hello\n[attached: a.txt, b.md]", turnText("hello", att))
}

// --- Failover tests ---

func TestFailoverFallsBackOnRetryable(t *testing.T) {
	api := config.Defaults().API
	api.Key = "k"
	api.Model = "primary"
	api.Fallbacks = []string{"secondary"}

	clients := map[string]*llm.MockClient{
		"primary": {CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProviderError{Provider: "gemini", Code: 429, Message: "quota"}
		}},
		"secondary": {},
	}
	p := llm.NewPoolWithFactory(api, func(_, model string) llm.Client { return clients[model] }, silentLog())

	f := NewFailoverClient(p, "", p.Models(), silentLog())
	resp, err := f.Complete(context.Background(), llm.Prompt("hi"))
	require.NoError(t, err)
	assert.Equal(t, "secondary", resp.Model)
	assert.Equal(t, 1, clients["primary"].Calls())
	assert.Equal(t, 1, clients["secondary"].Calls())
}

func TestFailoverStopsOnPermanentError(t *testing.T) {
	api := config.Defaults().API
	api.Model = "primary"
	api.Fallbacks = []string{"secondary"}

	clients := map[string]*llm.MockClient{
		"primary": {CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProviderError{Provider: "gemini", Code: 400, Message: "bad request"}
		}},
		"secondary": {},
	}
	p := llm.NewPoolWithFactory(api, func(_, model string) llm.Client { return clients[model] }, silentLog())

	f := NewFailoverClient(p, "k", p.Models(), silentLog())
	_, err := f.Complete(context.Background(), llm.Prompt("hi"))
	require.Error(t, err)
	assert.Equal(t, 0, clients["secondary"].Calls())
}

func TestFailoverNoModels(t *testing.T) {
	f := NewFailoverClient(poolFor(&llm.MockClient{}), "k", nil, silentLog())
	_, err := f.Complete(context.Background(), llm.Prompt("hi"))
	assert.EqualError(t, err, "no models configured")
	_, err = f.Stream(context.Background(), llm.Prompt("hi"))
	assert.EqualError(t, err, "no models configured")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{&llm.ProviderError{Code: 401}, true},
		{&llm.ProviderError{Code: 404}, true},
		{&llm.ProviderError{Code: 429}, true},
		{&llm.ProviderError{Code: 503}, true},
		{&llm.ProviderError{Code: 400}, false},
		{errors.New("model is overloaded"), true},
		{errors.New("RESOURCE_EXHAUSTED"), true},
		{errors.New("dial tcp: i/o timeout"), true},
		{errors.New("invalid argument"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryable(tt.err), "%v", tt.err)
	}
}
