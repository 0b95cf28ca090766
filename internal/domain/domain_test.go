package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- AgentType tests ---

func TestAgentTypes(t *testing.T) {
	assert.Len(t, AgentTypes, 7)
	for _, at := range AgentTypes {
		assert.True(t, at.Known(), string(at))
	}
	assert.False(t, AgentType("astrologer").Known())
	assert.False(t, AgentType("").Known())
}

func TestAgentTypeDisplayName(t *testing.T) {
	assert.Equal(t, "Researcher", AgentResearcher.DisplayName())
	assert.Equal(t, "Support", AgentSupport.DisplayName())
	assert.Equal(t, "", AgentType("").DisplayName())
}

// --- JSON serialization tests ---

func TestAgentJSONHidesCredential(t *testing.T) {
	a := Agent{Type: AgentWriter, Name: "Writer", Capabilities: []string{"drafting"}, Credential: "secret"}
	data, err := json.Marshal(a)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), `"type":"writer"`)
}

func TestAgentResultJSON(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	r := AgentResult{Agent: "Researcher", Type: AgentResearcher, Result: "three sources", Timestamp: ts}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Researcher", raw["agent"])
	assert.Equal(t, "researcher", raw["type"])
	assert.Equal(t, "three sources", raw["result"])
	assert.NotContains(t, raw, "failed")
}

func TestErrorResult(t *testing.T) {
	ts := time.Now()
	r := ErrorResult(Agent{Type: AgentAnalyst, Name: "Analyst"}, errors.New("gemini: 503 unavailable"), ts)

	assert.Equal(t, "Analyst", r.Agent)
	assert.Equal(t, AgentAnalyst, r.Type)
	assert.Equal(t, "Error: gemini: 503 unavailable", r.Result)
	assert.True(t, r.Failed)
	assert.Equal(t, ts, r.Timestamp)
}

func TestAgentStatsJSON_OmitsZeroLastActive(t *testing.T) {
	data, err := json.Marshal(AgentStats{Active: true})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "lastActive")
	assert.NotContains(t, string(data), "busy")
}

func TestConversationJSON(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := Conversation{
		Turns: []Turn{
			{ID: "01A", Role: RoleUser, Text: "hi", Timestamp: ts},
			{ID: "01B", Role: RoleModel, Text: "hello", Timestamp: ts.Add(time.Second)},
		},
		Summary: "greeting",
	}

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "exportedAt")

	var decoded Conversation
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, c, decoded)
}

func TestPersonaWake(t *testing.T) {
	assert.Equal(t, "nova", Persona{Name: "Nova"}.Wake())
	assert.Equal(t, "zoë", Persona{Name: "Zoë"}.Wake())
	assert.Equal(t, "hey aide", Persona{Name: "Aide", WakeWord: "hey aide"}.Wake())
	assert.Empty(t, Persona{}.Wake())
}

func TestDefaultPreferences(t *testing.T) {
	p := DefaultPreferences()
	assert.Equal(t, "light", p.Theme)
	assert.Equal(t, 1.0, p.Accessibility.FontScale)
	assert.False(t, p.Accessibility.HighContrast)
}
