package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultGeminiEndpoint is the public generative-language API base.
const DefaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// GeminiClient is a direct HTTP client for the Gemini generateContent API.
type GeminiClient struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// GeminiOption customizes a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithEndpoint overrides the API base URL (used by tests and proxies).
func WithEndpoint(endpoint string) GeminiOption {
	return func(g *GeminiClient) {
		if endpoint != "" {
			g.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiClient) { g.client = c }
}

// WithTimeout sets the per-request HTTP timeout. Zero disables it.
func WithTimeout(d time.Duration) GeminiOption {
	return func(g *GeminiClient) { g.client = &http.Client{Timeout: d} }
}

// NewGeminiClient creates a Gemini client bound to one credential and model.
func NewGeminiClient(apiKey, model string, opts ...GeminiOption) *GeminiClient {
	g := &GeminiClient{
		apiKey:   apiKey,
		model:    model,
		endpoint: DefaultGeminiEndpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Name returns the provider name.
func (g *GeminiClient) Name() string {
	return "gemini"
}

// Complete sends a non-streaming generateContent request.
func (g *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	model := g.modelFor(req)

	payload, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := g.newRequest(ctx, g.url(model, "generateContent", ""), payload)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{Provider: g.Name(), Code: resp.StatusCode, Message: errorMessage(respBody)}
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Candidates) == 0 {
		return nil, &ProviderError{Provider: g.Name(), Message: "no candidates in response"}
	}

	return result.toCompletion(model, time.Since(start)), nil
}

// Stream sends a streamGenerateContent request and relays text deltas.
func (g *GeminiClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	model := g.modelFor(req)

	payload, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := g.newRequest(ctx, g.url(model, "streamGenerateContent", "sse"), payload)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &ProviderError{Provider: g.Name(), Code: resp.StatusCode, Message: errorMessage(body)}
	}

	eventChan := make(chan StreamEvent)
	go g.relayStream(ctx, resp.Body, model, eventChan)
	return eventChan, nil
}

func (g *GeminiClient) relayStream(ctx context.Context, body io.ReadCloser, model string, eventChan chan<- StreamEvent) {
	defer close(eventChan)
	defer body.Close()

	send := func(evt StreamEvent) bool {
		select {
		case eventChan <- evt:
			return true
		case <-ctx.Done():
			return false
		}
	}

	start := time.Now()
	var full strings.Builder
	var usage Usage
	var stopReason string
	sawCandidate := false

	scanner := newSSEScanner(body)
	for scanner.Scan() {
		var chunk geminiResponse
		if err := json.Unmarshal(scanner.Data(), &chunk); err != nil {
			continue
		}
		if chunk.UsageMetadata.PromptTokenCount > 0 || chunk.UsageMetadata.CandidatesTokenCount > 0 {
			usage = chunk.UsageMetadata.usage()
		}
		for _, c := range chunk.Candidates {
			sawCandidate = true
			if c.FinishReason != "" {
				stopReason = c.FinishReason
			}
			for _, part := range c.Content.Parts {
				if part.Text == "" {
					continue
				}
				full.WriteString(part.Text)
				if !send(StreamEvent{Type: "delta", Content: part.Text}) {
					return
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		send(StreamEvent{Type: "error", Error: fmt.Sprintf("stream read failed: %v", err)})
		return
	}
	if !sawCandidate {
		send(StreamEvent{Type: "error", Error: "gemini: no candidates in response"})
		return
	}

	send(StreamEvent{
		Type: "done",
		Response: &CompletionResponse{
			Content:    full.String(),
			StopReason: stopReason,
			Usage:      usage,
			Model:      model,
			Duration:   time.Since(start),
		},
	})
}

func (g *GeminiClient) modelFor(req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return g.model
}

// url never carries the API key: transport errors quote the request URL.
func (g *GeminiClient) url(model, method, alt string) string {
	u := fmt.Sprintf("%s/models/%s:%s", g.endpoint, url.PathEscape(model), method)
	if alt != "" {
		u += "?alt=" + url.QueryEscape(alt)
	}
	return u
}

func (g *GeminiClient) newRequest(ctx context.Context, u string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("x-goog-api-key", g.apiKey)
	}
	return req, nil
}

// buildGeminiRequest maps a CompletionRequest onto the generateContent body.
func buildGeminiRequest(req CompletionRequest) geminiRequest {
	body := geminiRequest{
		Contents: make([]geminiContent, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		role := RoleUser
		if m.Role == RoleModel || m.Role == "assistant" {
			role = RoleModel
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	gc := geminiGenerationConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxTokens,
		TopK:            req.TopK,
		TopP:            req.TopP,
	}
	if gc != (geminiGenerationConfig{}) {
		body.GenerationConfig = &gc
	}
	return body
}

// errorMessage extracts error.message from a Google API error body, falling
// back to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// Wire structures

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	TopK            int      `json:"topK,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

func (u geminiUsage) usage() Usage {
	return Usage{InputTokens: u.PromptTokenCount, OutputTokens: u.CandidatesTokenCount}
}

func (r *geminiResponse) toCompletion(model string, d time.Duration) *CompletionResponse {
	c := r.Candidates[0]
	var content strings.Builder
	for _, part := range c.Content.Parts {
		content.WriteString(part.Text)
	}
	return &CompletionResponse{
		Content:    content.String(),
		StopReason: c.FinishReason,
		Usage:      r.UsageMetadata.usage(),
		Model:      model,
		Duration:   d,
	}
}
