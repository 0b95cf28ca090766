package conversation

import (
	"slices"
	"strings"
	"sync"

	"github.com/soyeahso/aide/internal/domain"
)

// Store persists the turn log and the rolling summary.
type Store interface {
	// AppendTurn adds a turn to the end of the log.
	AppendTurn(turn domain.Turn) error

	// Turns returns the full log, oldest first.
	Turns() ([]domain.Turn, error)

	// Summary returns the current summary, or "" if none has been written.
	Summary() (string, error)

	// SetSummary replaces the summary.
	SetSummary(summary string) error

	// Replace swaps the whole log and summary for conv.
	Replace(conv domain.Conversation) error

	// Clear drops every turn and the summary.
	Clear() error

	// Search returns up to limit turns whose text matches query, oldest first.
	Search(query string, limit int) ([]domain.Turn, error)
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	turns   []domain.Turn
	summary string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AppendTurn(turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	return nil
}

func (s *MemoryStore) Turns() ([]domain.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.turns), nil
}

func (s *MemoryStore) Summary() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary, nil
}

func (s *MemoryStore) SetSummary(summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = summary
	return nil
}

func (s *MemoryStore) Replace(conv domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = slices.Clone(conv.Turns)
	s.summary = conv.Summary
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.summary = ""
	return nil
}

// Search does a case-insensitive substring match.
func (s *MemoryStore) Search(query string, limit int) ([]domain.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	var out []domain.Turn
	for _, t := range s.turns {
		if strings.Contains(strings.ToLower(t.Text), q) {
			out = append(out, t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
