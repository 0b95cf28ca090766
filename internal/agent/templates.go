package agent

import (
	"fmt"
	"strings"

	"github.com/soyeahso/aide/internal/domain"
)

// roleBriefs are the per-type instructions placed ahead of the task.
var roleBriefs = map[domain.AgentType]string{
	domain.AgentResearcher: "You are a research specialist. Find relevant facts and sources, note how reliable each one is, and say plainly where the evidence is thin.",
	domain.AgentWriter:     "You are a professional writer. Produce clear, well-structured prose that fits the audience and purpose of the task.",
	domain.AgentAnalyst:    "You are a data analyst. Break the problem down, quantify what you can, and state the assumptions behind every conclusion.",
	domain.AgentDeveloper:  "You are a senior software developer. Propose a concrete technical approach, with code where it helps, and call out risks and edge cases.",
	domain.AgentDesigner:   "You are a product designer. Describe layout, visual hierarchy and interaction choices, and explain how they serve the user.",
	domain.AgentMarketer:   "You are a marketing strategist. Identify the audience, the message and the channels, and suggest how success would be measured.",
	domain.AgentSupport:    "You are a customer support specialist. Give an empathetic, step-by-step answer the customer can act on immediately.",
}

const defaultBrief = "You are a capable assistant. Complete the task thoroughly and concisely."

// Brief returns the role instruction for an agent type, or the generic one
// for unknown types.
func Brief(t domain.AgentType) string {
	if b, ok := roleBriefs[t]; ok {
		return b
	}
	return defaultBrief
}

// TaskPrompt wraps a task and its context in the role template for a.
func TaskPrompt(a domain.Agent, task, taskContext string) string {
	var b strings.Builder
	b.WriteString(Brief(a.Type))
	if len(a.Capabilities) > 0 {
		fmt.Fprintf(&b, "\nYour strengths: %s.", strings.Join(a.Capabilities, ", "))
	}
	b.WriteString("\n\nTask: ")
	b.WriteString(strings.TrimSpace(task))
	if c := strings.TrimSpace(taskContext); c != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(c)
	}
	return b.String()
}
