// Package agent runs the assistant's work against the generation API: the
// chat runner for the main conversation and the dispatcher that fans a task
// out to specialised agents.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/hooks"
	"github.com/soyeahso/aide/internal/llm"
	"github.com/soyeahso/aide/internal/logging"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// ErrNoActiveAgents is returned by Dispatch when there is nobody to run the task.
var ErrNoActiveAgents = errors.New("no active agents")

// ErrUnknownAgent is returned by Dispatch for a name missing from the roster.
var ErrUnknownAgent = errors.New("unknown agent")

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	// AgentTimeout bounds each agent's call. Zero means no limit.
	AgentTimeout time.Duration
	// MaxConcurrency caps in-flight calls. Zero means all at once.
	MaxConcurrency int
}

// Dispatcher sends one task to many agents in parallel and gathers every
// answer, failed or not.
type Dispatcher struct {
	roster *Roster
	pool   *llm.Pool
	hooks  *hooks.Manager
	cfg    DispatcherConfig
	log    *logging.Logger
	now    func() time.Time
}

// NewDispatcher creates a Dispatcher. hm may be nil.
func NewDispatcher(roster *Roster, p *llm.Pool, hm *hooks.Manager, cfg DispatcherConfig, log *logging.Logger) *Dispatcher {
	return &Dispatcher{
		roster: roster,
		pool:   p,
		hooks:  hm,
		cfg:    cfg,
		log:    log.Sub("agent.dispatch"),
		now:    time.Now,
	}
}

// Roster returns the dispatcher's roster.
func (d *Dispatcher) Roster() *Roster {
	return d.roster
}

// Dispatch runs task on every agent named in activeNames. The result slice
// has one entry per name, in the order given; an agent that fails
// contributes an "Error: ..." result instead of aborting the others.
func (d *Dispatcher) Dispatch(ctx context.Context, task, taskContext string, activeNames []string) ([]domain.AgentResult, error) {
	if strings.TrimSpace(task) == "" {
		return nil, fmt.Errorf("task is empty")
	}
	if len(activeNames) == 0 {
		return nil, ErrNoActiveAgents
	}
	agents, err := d.roster.resolve(activeNames)
	if err != nil {
		return nil, err
	}

	start := d.now()
	d.log.Info().Int("agents", len(agents)).Msg("dispatching task")
	d.emit(ctx, hooks.EventDispatchStart, map[string]any{"agents": len(agents)})

	results := make([]domain.AgentResult, len(agents))
	p := pool.New()
	if d.cfg.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(d.cfg.MaxConcurrency)
	}
	for i, a := range agents {
		p.Go(func() {
			results[i] = d.runOne(ctx, a, task, taskContext)
		})
	}
	p.Wait()

	failed := 0
	for _, r := range results {
		if r.Failed {
			failed++
		}
	}
	d.log.Info().
		Int("agents", len(agents)).
		Int("failed", failed).
		Dur("duration", d.now().Sub(start)).
		Msg("dispatch finished")
	d.emit(ctx, hooks.EventDispatchDone, map[string]any{
		"agents": len(agents),
		"failed": failed,
	})
	return results, nil
}

// runOne calls a single agent. It never panics and always returns a result.
func (d *Dispatcher) runOne(ctx context.Context, a domain.Agent, task, taskContext string) domain.AgentResult {
	d.roster.setBusy(a.Name, true)
	defer d.roster.setBusy(a.Name, false)

	if d.cfg.AgentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.AgentTimeout)
		defer cancel()
	}

	var resp *llm.CompletionResponse
	var err error
	var pc panics.Catcher
	pc.Try(func() {
		client := NewFailoverClient(d.pool, a.Credential, d.pool.Models(), d.log)
		req := d.pool.Request("", []llm.Message{{Role: llm.RoleUser, Content: TaskPrompt(a, task, taskContext)}})
		resp, err = client.Complete(ctx, req)
	})
	if rec := pc.Recovered(); rec != nil {
		err = rec.AsError()
	} else if err == nil && resp == nil {
		err = errors.New("empty response")
	}

	at := d.now()
	if err != nil {
		d.log.Warn().Str("agent", a.Name).Err(err).Msg("agent failed")
		return domain.ErrorResult(a, err, at)
	}

	d.roster.recordSuccess(a.Name, at)
	d.log.Debug().Str("agent", a.Name).Str("model", resp.Model).Msg("agent finished")
	return domain.AgentResult{
		Agent:     a.Name,
		Type:      a.Type,
		Result:    resp.Content,
		Timestamp: at,
	}
}

func (d *Dispatcher) emit(ctx context.Context, event string, data map[string]any) {
	if d.hooks != nil {
		d.hooks.Emit(ctx, event, data)
	}
}

// DispatchActive runs task on the roster's currently active agents.
func (d *Dispatcher) DispatchActive(ctx context.Context, task, taskContext string) ([]domain.AgentResult, error) {
	return d.Dispatch(ctx, task, taskContext, d.roster.Active())
}
