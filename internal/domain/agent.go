package domain

import (
	"fmt"
	"strings"
	"time"
)

// AgentType is the fixed role an agent plays. Each type selects a prompt
// template; unrecognised types fall back to a generic one.
type AgentType string

const (
	AgentResearcher AgentType = "researcher"
	AgentWriter     AgentType = "writer"
	AgentAnalyst    AgentType = "analyst"
	AgentDeveloper  AgentType = "developer"
	AgentDesigner   AgentType = "designer"
	AgentMarketer   AgentType = "marketer"
	AgentSupport    AgentType = "support"
)

// AgentTypes lists every known agent type in roster order.
var AgentTypes = []AgentType{
	AgentResearcher,
	AgentWriter,
	AgentAnalyst,
	AgentDeveloper,
	AgentDesigner,
	AgentMarketer,
	AgentSupport,
}

// Known reports whether t is one of the fixed agent types.
func (t AgentType) Known() bool {
	for _, k := range AgentTypes {
		if k == t {
			return true
		}
	}
	return false
}

// DisplayName is the title-cased type name used as the default agent name.
func (t AgentType) DisplayName() string {
	s := string(t)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Agent describes a specialised worker. Agents are immutable once built;
// runtime state lives in AgentStats.
type Agent struct {
	Type         AgentType `json:"type"`
	Name         string    `json:"name"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Credential   string    `json:"-"`
}

// AgentStats is the mutable bookkeeping kept per agent name.
type AgentStats struct {
	Active         bool      `json:"active"`
	Busy           bool      `json:"busy,omitempty"`
	TasksCompleted int       `json:"tasksCompleted"`
	LastActive     time.Time `json:"lastActive,omitzero"`
}

// AgentResult is one agent's answer to a dispatched task. A failed call
// still produces a result whose text starts with "Error: ".
type AgentResult struct {
	Agent     string    `json:"agent"`
	Type      AgentType `json:"type"`
	Result    string    `json:"result"`
	Failed    bool      `json:"failed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResult builds the synthetic result recorded for a failed agent.
func ErrorResult(a Agent, err error, at time.Time) AgentResult {
	return AgentResult{
		Agent:     a.Name,
		Type:      a.Type,
		Result:    fmt.Sprintf("Error: %v", err),
		Failed:    true,
		Timestamp: at,
	}
}
