// Package conversation keeps the assistant's conversation memory: an
// append-only turn log, a periodically rewritten summary, and the prompt
// assembled from both.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/hooks"
	"github.com/soyeahso/aide/internal/logging"
)

// Memory is the turn log and summary of the single conversation the
// assistant holds with its user.
type Memory struct {
	store Store
	hooks *hooks.Manager
	log   *logging.Logger
	now   func() time.Time
}

// NewMemory creates a Memory over store. hm may be nil.
func NewMemory(store Store, hm *hooks.Manager, log *logging.Logger) *Memory {
	return &Memory{
		store: store,
		hooks: hm,
		log:   log.Sub("conversation"),
		now:   time.Now,
	}
}

// Append records a turn. Role must be domain.RoleUser or domain.RoleModel.
func (m *Memory) Append(ctx context.Context, role, text string) (domain.Turn, error) {
	if role != domain.RoleUser && role != domain.RoleModel {
		return domain.Turn{}, fmt.Errorf("invalid turn role %q", role)
	}

	turn := domain.Turn{
		ID:        ulid.Make().String(),
		Role:      role,
		Text:      text,
		Timestamp: m.now().UTC(),
	}
	if err := m.store.AppendTurn(turn); err != nil {
		return domain.Turn{}, fmt.Errorf("appending turn: %w", err)
	}

	m.emit(ctx, hooks.EventTurnAppended, map[string]any{
		"turnId": turn.ID,
		"role":   turn.Role,
	})
	return turn, nil
}

// History returns every recorded turn, oldest first.
func (m *Memory) History() ([]domain.Turn, error) {
	return m.store.Turns()
}

// Recent returns at most the last n turns, oldest first. n <= 0 yields none.
func (m *Memory) Recent(n int) ([]domain.Turn, error) {
	if n <= 0 {
		return nil, nil
	}
	turns, err := m.store.Turns()
	if err != nil {
		return nil, err
	}
	return lastN(turns, n), nil
}

// Summary returns the current rolling summary.
func (m *Memory) Summary() (string, error) {
	return m.store.Summary()
}

// SetSummary replaces the rolling summary.
func (m *Memory) SetSummary(ctx context.Context, summary string) error {
	if err := m.store.SetSummary(summary); err != nil {
		return fmt.Errorf("saving summary: %w", err)
	}
	m.emit(ctx, hooks.EventSummaryRefreshed, map[string]any{
		"words": len(strings.Fields(summary)),
	})
	return nil
}

// Clear forgets every turn and the summary.
func (m *Memory) Clear(ctx context.Context) error {
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clearing conversation: %w", err)
	}
	m.log.Info().Msg("conversation cleared")
	m.emit(ctx, hooks.EventConversationCleared, nil)
	return nil
}

// Search finds turns whose text matches query.
func (m *Memory) Search(query string, limit int) ([]domain.Turn, error) {
	return m.store.Search(query, limit)
}

// Snapshot returns the full conversation as one value.
func (m *Memory) Snapshot() (domain.Conversation, error) {
	turns, err := m.store.Turns()
	if err != nil {
		return domain.Conversation{}, err
	}
	summary, err := m.store.Summary()
	if err != nil {
		return domain.Conversation{}, err
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	return domain.Conversation{Turns: turns, Summary: summary}, nil
}

// Export writes the conversation as indented JSON.
func (m *Memory) Export(w io.Writer) error {
	conv, err := m.Snapshot()
	if err != nil {
		return err
	}
	conv.ExportedAt = m.now().UTC()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(conv); err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}
	return nil
}

// Import replaces the conversation with one previously written by Export.
func (m *Memory) Import(ctx context.Context, r io.Reader) error {
	var conv domain.Conversation
	if err := json.NewDecoder(r).Decode(&conv); err != nil {
		return fmt.Errorf("decoding conversation: %w", err)
	}
	for i, t := range conv.Turns {
		if t.Role != domain.RoleUser && t.Role != domain.RoleModel {
			return fmt.Errorf("turn %d: invalid role %q", i, t.Role)
		}
		if t.ID == "" {
			return fmt.Errorf("turn %d: missing id", i)
		}
	}
	conv.ExportedAt = time.Time{}

	if err := m.store.Replace(conv); err != nil {
		return fmt.Errorf("importing conversation: %w", err)
	}
	m.log.Info().Int("turns", len(conv.Turns)).Msg("conversation imported")
	m.emit(ctx, hooks.EventConversationImported, map[string]any{"turns": len(conv.Turns)})
	return nil
}

func (m *Memory) emit(ctx context.Context, event string, data map[string]any) {
	if m.hooks != nil {
		m.hooks.Emit(ctx, event, data)
	}
}

func lastN(turns []domain.Turn, n int) []domain.Turn {
	if len(turns) > n {
		return turns[len(turns)-n:]
	}
	return turns
}
