package domain

import "time"

// Turn roles. The assistant side uses the generation API's name for it.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn is one entry in the append-only conversation log.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the exported form of a conversation: its full turn log and
// the current rolling summary.
type Conversation struct {
	Turns      []Turn    `json:"turns"`
	Summary    string    `json:"summary"`
	ExportedAt time.Time `json:"exportedAt,omitzero"`
}
