package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/aide/internal/domain"
)

var defaultCapabilities = map[domain.AgentType][]string{
	domain.AgentResearcher: {"web research", "source evaluation", "fact checking"},
	domain.AgentWriter:     {"copywriting", "editing", "documentation"},
	domain.AgentAnalyst:    {"data analysis", "forecasting", "reporting"},
	domain.AgentDeveloper:  {"software design", "code review", "debugging"},
	domain.AgentDesigner:   {"ui design", "ux review", "branding"},
	domain.AgentMarketer:   {"campaigns", "positioning", "social media"},
	domain.AgentSupport:    {"troubleshooting", "customer communication", "faq"},
}

// Roster holds the known agents and their runtime stats.
type Roster struct {
	mu     sync.RWMutex
	agents []domain.Agent
	stats  map[string]*domain.AgentStats
}

// NewRoster creates a roster from agents. Names must be unique.
func NewRoster(agents ...domain.Agent) (*Roster, error) {
	r := &Roster{stats: make(map[string]*domain.AgentStats)}
	for _, a := range agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agent of type %q has no name", a.Type)
		}
		if _, dup := r.stats[a.Name]; dup {
			return nil, fmt.Errorf("duplicate agent name %q", a.Name)
		}
		r.agents = append(r.agents, a)
		r.stats[a.Name] = &domain.AgentStats{}
	}
	return r, nil
}

// DefaultRoster builds one agent per known type, all sharing credential.
// Without a credential the roster is empty.
func DefaultRoster(credential string) *Roster {
	if credential == "" {
		r, _ := NewRoster()
		return r
	}
	agents := make([]domain.Agent, 0, len(domain.AgentTypes))
	for _, t := range domain.AgentTypes {
		agents = append(agents, domain.Agent{
			Type:         t,
			Name:         t.DisplayName(),
			Capabilities: defaultCapabilities[t],
			Credential:   credential,
		})
	}
	r, _ := NewRoster(agents...)
	return r
}

// Agents returns every agent in roster order.
func (r *Roster) Agents() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// Get looks an agent up by name.
func (r *Roster) Get(name string) (domain.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.Name == name {
			return a, true
		}
	}
	return domain.Agent{}, false
}

// SetActive toggles whether an agent takes part in dispatches.
func (r *Roster) SetActive(name string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stats[name]
	if !ok {
		return fmt.Errorf("unknown agent %q", name)
	}
	st.Active = active
	return nil
}

// Active returns the names of active agents in roster order.
func (r *Roster) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, a := range r.agents {
		if r.stats[a.Name].Active {
			names = append(names, a.Name)
		}
	}
	return names
}

// Stats returns a snapshot of an agent's stats.
func (r *Roster) Stats(name string) (domain.AgentStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stats[name]
	if !ok {
		return domain.AgentStats{}, false
	}
	return *st, true
}

// resolve maps names to agents in the order given. Unknown and repeated
// names are errors, so every name gets exactly one result.
func (r *Roster) resolve(names []string) ([]domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Agent, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if seen[n] {
			return nil, fmt.Errorf("agent %q named twice", n)
		}
		seen[n] = true
		a, ok := r.find(n)
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownAgent, n)
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Roster) find(name string) (domain.Agent, bool) {
	for _, a := range r.agents {
		if a.Name == name {
			return a, true
		}
	}
	return domain.Agent{}, false
}

func (r *Roster) setBusy(name string, busy bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stats[name]; ok {
		st.Busy = busy
	}
}

func (r *Roster) recordSuccess(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stats[name]; ok {
		st.TasksCompleted++
		st.LastActive = at
	}
}
