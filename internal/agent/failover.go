package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/aide/internal/llm"
	"github.com/soyeahso/aide/internal/logging"
)

// FailoverClient tries a list of models in order for one credential,
// moving on only when an error suggests another model may succeed.
type FailoverClient struct {
	pool       *llm.Pool
	credential string
	models     []string
	log        *logging.Logger
}

var _ llm.Client = (*FailoverClient)(nil)

// NewFailoverClient creates a client that tries models[0] first, then the
// rest on retryable errors: 401, 403, 404 (model not found), 429, 5xx and
// overload or timeout messages. An empty credential uses the pool's
// configured key.
func NewFailoverClient(pool *llm.Pool, credential string, models []string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		pool:       pool,
		credential: credential,
		models:     models,
		log:        log.Sub("failover"),
	}
}

// Name returns the provider name.
func (f *FailoverClient) Name() string {
	return "failover"
}

// Complete tries the primary model, falling back on retryable errors.
func (f *FailoverClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for _, model := range f.models {
		client := f.pool.Client(f.credential, model)

		req.Model = model
		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if isRetryable(err) {
			f.log.Warn().
				Str("model", model).
				Err(err).
				Msg("retryable error, trying next model")
			continue
		}

		return nil, err
	}

	if lastErr == nil {
		lastErr = errors.New("no models configured")
	}
	return nil, lastErr
}

// Stream opens a stream on the first model that accepts the request.
// Failures after the stream has started are reported on the channel.
func (f *FailoverClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	var lastErr error
	for _, model := range f.models {
		client := f.pool.Client(f.credential, model)

		req.Model = model
		ch, err := client.Stream(ctx, req)
		if err == nil {
			return ch, nil
		}

		lastErr = err

		if isRetryable(err) {
			f.log.Warn().
				Str("model", model).
				Err(err).
				Msg("retryable stream error, trying next model")
			continue
		}

		return nil, err
	}

	if lastErr == nil {
		lastErr = errors.New("no models configured")
	}
	return nil, lastErr
}

// isRetryable checks if the error suggests trying another provider.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 401, 403, 404, 429, 500, 502, 503, 504:
			return true
		}
	}

	msg := err.Error()
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "timeout")
}
