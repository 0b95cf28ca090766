package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/aide/internal/config"
	"github.com/soyeahso/aide/internal/logging"
)

// ProviderError is returned when the generation endpoint fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code (401, 429, 500, etc.); 0 for malformed responses
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Factory builds a client for one credential and model.
type Factory func(credential, model string) Client

type poolKey struct {
	credential string
	model      string
}

// Pool hands out clients keyed by credential and model, creating them on
// first use. Agents carry their own credential, so one pool serves the
// persona and every agent.
type Pool struct {
	mu      sync.Mutex
	clients map[poolKey]Client
	factory Factory
	api     config.APIConfig
	log     *logging.Logger
}

// NewPool creates a pool of Gemini clients configured from api.
func NewPool(api config.APIConfig, log *logging.Logger) *Pool {
	timeout := time.Duration(api.TimeoutSeconds) * time.Second
	factory := func(credential, model string) Client {
		return NewGeminiClient(credential, model, WithEndpoint(api.Endpoint), WithTimeout(timeout))
	}
	return NewPoolWithFactory(api, factory, log)
}

// NewPoolWithFactory creates a pool that builds clients with factory.
func NewPoolWithFactory(api config.APIConfig, factory Factory, log *logging.Logger) *Pool {
	return &Pool{
		clients: make(map[poolKey]Client),
		factory: factory,
		api:     api,
		log:     log.Sub("llm.pool"),
	}
}

// Client returns the client for credential and model. Empty values fall
// back to the configured key and model.
func (p *Pool) Client(credential, model string) Client {
	if credential == "" {
		credential = p.api.Key
	}
	if model == "" {
		model = p.api.Model
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	k := poolKey{credential: credential, model: model}
	if c, ok := p.clients[k]; ok {
		return c
	}
	c := p.factory(credential, model)
	p.clients[k] = c
	p.log.Debug().Str("model", model).Bool("credential", credential != "").Msg("created client")
	return c
}

// HasCredential reports whether a default API key is configured.
func (p *Pool) HasCredential() bool {
	return p.api.Key != ""
}

// Models returns the primary model followed by configured fallbacks.
func (p *Pool) Models() []string {
	return append([]string{p.api.Model}, p.api.Fallbacks...)
}

// Request builds a CompletionRequest carrying the configured generation
// parameters.
func (p *Pool) Request(system string, messages []Message) CompletionRequest {
	return CompletionRequest{
		Model:       p.api.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   p.api.MaxOutputTokens,
		Temperature: p.api.Temperature,
		TopK:        p.api.TopK,
		TopP:        p.api.TopP,
	}
}

// Len returns the number of clients created so far.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
