package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiServer(t *testing.T, handler http.HandlerFunc) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGeminiClient("test-key", "gemini-test", WithEndpoint(srv.URL+"/v1beta/"), WithHTTPClient(srv.Client()))
}

func TestGeminiCompleteRequestShape(t *testing.T) {
	var captured map[string]any
	var path, key string

	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.Header.Get("x-goog-api-key")
		assert.Empty(t, r.URL.RawQuery)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))

		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello "},{"text":"there"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3}}`)
	})

	temp, topP := 0.5, 0.9
	resp, err := client.Complete(context.Background(), CompletionRequest{
		System: "You are Aide.",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleModel, Content: "hello"},
			{Role: RoleUser, Content: "how are you"},
		},
		MaxTokens:   256,
		Temperature: &temp,
		TopK:        20,
		TopP:        &topP,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/models/gemini-test:generateContent", path)
	assert.Equal(t, "test-key", key)

	assert.Equal(t, "Hello there", resp.Content)
	assert.Equal(t, "STOP", resp.StopReason)
	assert.Equal(t, "gemini-test", resp.Model)
	assert.Equal(t, Usage{InputTokens: 7, OutputTokens: 3}, resp.Usage)

	contents := captured["contents"].([]any)
	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].(map[string]any)["role"])

	gc := captured["generationConfig"].(map[string]any)
	assert.Equal(t, 0.5, gc["temperature"])
	assert.Equal(t, float64(256), gc["maxOutputTokens"])
	assert.Equal(t, float64(20), gc["topK"])
	assert.Equal(t, 0.9, gc["topP"])

	sys := captured["systemInstruction"].(map[string]any)
	parts := sys["parts"].([]any)
	assert.Equal(t, "You are Aide.", parts[0].(map[string]any)["text"])
}

func TestGeminiCompleteOmitsEmptySections(t *testing.T) {
	var captured map[string]any
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &captured))
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	})

	_, err := client.Complete(context.Background(), Prompt("ping"))
	require.NoError(t, err)
	assert.NotContains(t, captured, "systemInstruction")
	assert.NotContains(t, captured, "generationConfig")
}

func TestGeminiCompleteUsesRequestModel(t *testing.T) {
	var path string
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`)
	})

	req := Prompt("ping")
	req.Model = "gemini-other"
	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "/models/gemini-other:generateContent"))
	assert.Equal(t, "gemini-other", resp.Model)
}

func TestGeminiCompleteNon2xx(t *testing.T) {
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`)
	})

	_, err := client.Complete(context.Background(), Prompt("hi"))
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 429, pe.Code)
	assert.Equal(t, "Resource has been exhausted", pe.Message)
}

func TestGeminiCompleteMissingCandidate(t *testing.T) {
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"promptFeedback":{"blockReason":"SAFETY"}}`)
	})

	_, err := client.Complete(context.Background(), Prompt("hi"))
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.Code)
	assert.Contains(t, err.Error(), "no candidates")
}

func TestGeminiCompleteMalformedJSON(t *testing.T) {
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	})

	_, err := client.Complete(context.Background(), Prompt("hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse response")
}

func TestGeminiTransportErrorHidesKey(t *testing.T) {
	client := NewGeminiClient("SECRET-KEY-123", "gemini-test", WithEndpoint("http://127.0.0.1:1/v1beta"), WithTimeout(2*time.Second))

	_, err := client.Complete(context.Background(), Prompt("hi"))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-KEY-123")

	_, err = client.Stream(context.Background(), Prompt("hi"))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "SECRET-KEY-123")
}

func TestGeminiStream(t *testing.T) {
	var query, key string
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		key = r.Header.Get("x-goog-api-key")
		assert.True(t, strings.HasSuffix(r.URL.Path, ":streamGenerateContent"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]},\"finishReason\":\"STOP\"}],\"usageMetadata\":{\"promptTokenCount\":4,\"candidatesTokenCount\":2}}\n\n")
	})

	ch, err := client.Stream(context.Background(), Prompt("hi"))
	require.NoError(t, err)

	var deltas []string
	var done *CompletionResponse
	for evt := range ch {
		switch evt.Type {
		case "delta":
			deltas = append(deltas, evt.Content)
		case "done":
			done = evt.Response
		case "error":
			t.Fatalf("unexpected error event: %s", evt.Error)
		}
	}

	assert.Equal(t, "alt=sse", query)
	assert.Equal(t, "test-key", key)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.NotNil(t, done)
	assert.Equal(t, "Hello", done.Content)
	assert.Equal(t, "STOP", done.StopReason)
	assert.Equal(t, 2, done.Usage.OutputTokens)
}

func TestGeminiStreamNon2xx(t *testing.T) {
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	_, err := client.Stream(context.Background(), Prompt("hi"))
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 503, pe.Code)
}

func TestGeminiStreamNoCandidates(t *testing.T) {
	client := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"promptFeedback\":{}}\n\n")
	})

	ch, err := client.Stream(context.Background(), Prompt("hi"))
	require.NoError(t, err)

	var last StreamEvent
	for evt := range ch {
		last = evt
	}
	assert.Equal(t, "error", last.Type)
	assert.Contains(t, last.Error, "no candidates")
}

func TestSSEScanner(t *testing.T) {
	in := "event: message\ndata: {\"a\":1}\n\n: comment\ndata:\ndata: [DONE]\ndata:{\"b\":2}\n"
	s := newSSEScanner(strings.NewReader(in))

	var got []string
	for s.Scan() {
		got = append(got, string(s.Data()))
	}
	require.NoError(t, s.Err())
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, got)
}
