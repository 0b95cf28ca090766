package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/soyeahso/aide/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizerRefresh(t *testing.T) {
	var got llm.CompletionRequest
	mock := &llm.MockClient{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			got = req
			return &llm.CompletionResponse{Content: "  New summary.  "}, nil
		},
	}
	s := NewSummarizer(mock, nil, SummarizerConfig{}, silentLog())

	summary, err := s.Refresh(context.Background(), makeTurns(15), "Old summary.")
	require.NoError(t, err)
	assert.Equal(t, "New summary.", summary)

	assert.Contains(t, got.System, "200 words or fewer")
	require.Len(t, got.Messages, 1)
	body := got.Messages[0].Content
	assert.Contains(t, body, "Previous summary:\nOld summary.")
	assert.NotContains(t, body, "message 4\n")
	assert.Contains(t, body, "message 5")
	assert.Equal(t, SummaryTurns, strings.Count(body, "message "))
}

func TestSummarizerUsesRequestBuilder(t *testing.T) {
	temp := 0.2
	var got llm.CompletionRequest
	mock := &llm.MockClient{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			got = req
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}
	build := func(system string, msgs []llm.Message) llm.CompletionRequest {
		return llm.CompletionRequest{Model: "gemini-x", System: system, Messages: msgs, Temperature: &temp}
	}
	s := NewSummarizer(mock, build, SummarizerConfig{Words: 50}, silentLog())

	_, err := s.Refresh(context.Background(), makeTurns(2), "")
	require.NoError(t, err)
	assert.Equal(t, "gemini-x", got.Model)
	assert.Contains(t, got.System, "50 words or fewer")
	assert.NotContains(t, got.Messages[0].Content, "Previous summary")
}

func TestSummarizerCapsWords(t *testing.T) {
	mock := &llm.MockClient{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return &llm.CompletionResponse{Content: strings.Repeat("word ", 300)}, nil
		},
	}
	s := NewSummarizer(mock, nil, SummarizerConfig{}, silentLog())

	summary, err := s.Refresh(context.Background(), makeTurns(3), "")
	require.NoError(t, err)
	assert.Len(t, strings.Fields(summary), SummaryWords)
}

func TestSummarizerNoTurnsSkipsCall(t *testing.T) {
	mock := &llm.MockClient{}
	s := NewSummarizer(mock, nil, SummarizerConfig{}, silentLog())

	summary, err := s.Refresh(context.Background(), nil, "kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", summary)
	assert.Equal(t, 0, mock.Calls())
}

func TestSummarizerFailurePolicies(t *testing.T) {
	failing := func() *llm.MockClient {
		return &llm.MockClient{
			CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return nil, &llm.ProviderError{Provider: "gemini", Code: 500, Message: "internal"}
			},
		}
	}

	t.Run("suppress", func(t *testing.T) {
		s := NewSummarizer(failing(), nil, SummarizerConfig{Failure: FailureSuppress}, silentLog())
		summary, err := s.Refresh(context.Background(), makeTurns(2), "previous")
		require.NoError(t, err)
		assert.Equal(t, "previous", summary)
	})

	t.Run("surface", func(t *testing.T) {
		s := NewSummarizer(failing(), nil, SummarizerConfig{Failure: FailureSurface}, silentLog())
		summary, err := s.Refresh(context.Background(), makeTurns(2), "previous")
		var pe *llm.ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "previous", summary)
	})

	t.Run("empty reply surfaces", func(t *testing.T) {
		mock := &llm.MockClient{
			CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return &llm.CompletionResponse{Content: "   "}, nil
			},
		}
		s := NewSummarizer(mock, nil, SummarizerConfig{Failure: FailureSurface}, silentLog())
		summary, err := s.Refresh(context.Background(), makeTurns(2), "previous")
		assert.Error(t, err)
		assert.Equal(t, "previous", summary)
	})

	t.Run("nil response", func(t *testing.T) {
		mock := &llm.MockClient{
			CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return nil, nil
			},
		}
		s := NewSummarizer(mock, nil, SummarizerConfig{Failure: FailureSurface}, silentLog())
		summary, err := s.Refresh(context.Background(), makeTurns(2), "previous")
		assert.Error(t, err)
		assert.Equal(t, "previous", summary)

		s = NewSummarizer(mock, nil, SummarizerConfig{Failure: FailureSuppress}, silentLog())
		summary, err = s.Refresh(context.Background(), makeTurns(2), "previous")
		require.NoError(t, err)
		assert.Equal(t, "previous", summary)
	})
}
