package domain

import "strings"

// Persona is the configurable identity the assistant presents.
type Persona struct {
	Name               string   `json:"name" yaml:"name"`
	Role               string   `json:"role,omitempty" yaml:"role,omitempty"`
	Personality        string   `json:"personality,omitempty" yaml:"personality,omitempty"`
	Style              string   `json:"style,omitempty" yaml:"style,omitempty"`
	CustomInstructions string   `json:"customInstructions,omitempty" yaml:"customInstructions,omitempty"`
	Skills             []string `json:"skills,omitempty" yaml:"skills,omitempty"`
	WakeWord           string   `json:"wakeWord,omitempty" yaml:"wakeWord,omitempty"`
}

// Wake returns the word that addresses the assistant: WakeWord, or the
// lowercased name when none is set.
func (p Persona) Wake() string {
	if w := strings.TrimSpace(p.WakeWord); w != "" {
		return w
	}
	return strings.ToLower(strings.TrimSpace(p.Name))
}

// Accessibility holds display preferences a client applies.
type Accessibility struct {
	FontScale    float64 `json:"fontScale,omitempty"`
	HighContrast bool    `json:"highContrast,omitempty"`
	ReduceMotion bool    `json:"reduceMotion,omitempty"`
}

// Preferences are per-user presentation settings.
type Preferences struct {
	Theme         string        `json:"theme,omitempty"`
	Accessibility Accessibility `json:"accessibility"`
}

// DefaultPreferences returns the preferences used before any are saved.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:         "light",
		Accessibility: Accessibility{FontScale: 1},
	}
}
