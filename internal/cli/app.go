package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/aide/internal/agent"
	"github.com/soyeahso/aide/internal/config"
	"github.com/soyeahso/aide/internal/conversation"
	"github.com/soyeahso/aide/internal/hooks"
	"github.com/soyeahso/aide/internal/llm"
	"github.com/soyeahso/aide/internal/logging"
	"github.com/soyeahso/aide/internal/store"
)

var errNoAPIKey = errors.New("no API key configured: set api.key, AIDE_API_KEY or `aide prefs set credential`")

// app holds the services a command needs, built from config.
type app struct {
	cfg        config.Config
	log        *logging.Logger
	db         *store.DB // nil with the memory driver
	kv         *store.KV // nil with the memory driver
	hooks      *hooks.Manager
	memory     *conversation.Memory
	pool       *llm.Pool
	runner     *agent.Runner
	dispatcher *agent.Dispatcher
}

// openApp loads config and wires storage, memory and the model clients.
// The caller must Close the app.
func openApp(cfg config.Config, p config.Paths, l *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, log: l, hooks: hooks.NewManager(l)}

	var convStore conversation.Store
	switch cfg.Storage.Driver {
	case "memory":
		convStore = conversation.NewMemoryStore()
	default:
		if err := p.EnsureDirs(); err != nil {
			return nil, fmt.Errorf("creating data directories: %w", err)
		}
		db, err := store.Open(p.DatabasePath(cfg.Storage), l)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.db = db
		a.kv = store.NewKV(db)
		convStore = store.NewConversationStore(db)
	}

	// Stored values fill in what the config file leaves out.
	if a.kv != nil {
		if a.cfg.API.Key == "" {
			cred, err := a.kv.Credential()
			if err != nil {
				a.Close()
				return nil, err
			}
			a.cfg.API.Key = cred
		}
	}

	a.memory = conversation.NewMemory(convStore, a.hooks, l)
	a.pool = llm.NewPool(a.cfg.API, l)

	persona := a.cfg.Persona.AsPersona()
	if a.kv != nil {
		stored, ok, err := a.kv.Persona()
		if err != nil {
			a.Close()
			return nil, err
		}
		if ok {
			persona = stored
		}
	}

	summarizer := conversation.NewSummarizer(
		agent.NewFailoverClient(a.pool, "", a.pool.Models(), l),
		a.pool.Request,
		conversation.SummarizerConfig{
			Turns:   a.cfg.Context.SummaryTurns,
			Words:   a.cfg.Context.SummaryWords,
			Failure: a.cfg.Context.SummaryFailure,
		},
		l,
	)
	a.runner = agent.NewRunner(agent.RunnerConfig{
		Persona:     persona,
		PromptTurns: a.cfg.Context.PromptTurns,
	}, a.pool, a.memory, summarizer, l)

	roster := agent.DefaultRoster(a.cfg.API.Key)
	active := a.cfg.Dispatch.Active
	if len(active) == 0 {
		for _, ag := range roster.Agents() {
			active = append(active, ag.Name)
		}
	}
	for _, name := range active {
		if err := roster.SetActive(name, true); err != nil {
			l.Warn().Str("agent", name).Msg("ignoring unknown agent in dispatch.active")
		}
	}
	a.dispatcher = agent.NewDispatcher(roster, a.pool, a.hooks, agent.DispatcherConfig{
		AgentTimeout:   time.Duration(a.cfg.Dispatch.AgentTimeoutSeconds) * time.Second,
		MaxConcurrency: a.cfg.Dispatch.MaxConcurrency,
	}, l)
	return a, nil
}

// requireKey fails commands that call the model without a credential.
func (a *app) requireKey() error {
	if !a.pool.HasCredential() {
		return errNoAPIKey
	}
	return nil
}

// requireKV fails commands that need the local database.
func (a *app) requireKV() error {
	if a.kv == nil {
		return errors.New("preferences need the sqlite storage driver")
	}
	return nil
}

func (a *app) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// loadApp loads the config at the resolved path and opens the app.
func loadApp() (*app, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	return openApp(cfg, paths, log)
}

// timeoutCtx bounds a single model call from the command line.
func timeoutCtx(parent context.Context, cfg config.Config) (context.Context, context.CancelFunc) {
	d := time.Duration(cfg.API.TimeoutSeconds) * time.Second
	if d <= 0 {
		return context.WithCancel(parent)
	}
	// Chat plus a summary refresh is two calls.
	return context.WithTimeout(parent, 2*d)
}
