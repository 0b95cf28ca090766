package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/aide/internal/conversation"
	"github.com/soyeahso/aide/internal/domain"
)

// ConversationStore implements conversation.Store backed by SQLite. Turns
// live in the turns table with an FTS5 index; the summary is kept in kv.
type ConversationStore struct {
	db *DB
	kv *KV
}

var _ conversation.Store = (*ConversationStore)(nil)

// NewConversationStore creates a conversation store using the given database.
func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db, kv: NewKV(db)}
}

// AppendTurn adds a turn to the end of the log.
func (s *ConversationStore) AppendTurn(turn domain.Turn) error {
	return insertTurn(s.db.sql, turn)
}

func insertTurn(ex execer, turn domain.Turn) error {
	_, err := ex.Exec(
		`INSERT INTO turns (id, role, text, timestamp) VALUES (?, ?, ?, ?)`,
		turn.ID, turn.Role, turn.Text, turn.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting turn %s: %w", turn.ID, err)
	}
	return nil
}

// Turns returns the full log, oldest first.
func (s *ConversationStore) Turns() ([]domain.Turn, error) {
	rows, err := s.db.sql.Query(`SELECT id, role, text, timestamp FROM turns ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

// Summary returns the current summary, or "".
func (s *ConversationStore) Summary() (string, error) {
	var summary string
	_, err := s.kv.Get(KeySummary, &summary)
	return summary, err
}

// SetSummary replaces the summary.
func (s *ConversationStore) SetSummary(summary string) error {
	return s.kv.Set(KeySummary, summary)
}

// Replace swaps the whole log and summary in one transaction.
func (s *ConversationStore) Replace(conv domain.Conversation) error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM turns`); err != nil {
		return fmt.Errorf("clearing turns: %w", err)
	}
	for _, t := range conv.Turns {
		if err := insertTurn(tx, t); err != nil {
			return err
		}
	}
	summary, err := json.Marshal(conv.Summary)
	if err != nil {
		return err
	}
	if err := s.kv.setRaw(tx, KeySummary, summary); err != nil {
		return err
	}
	return tx.Commit()
}

// Clear drops every turn and the summary.
func (s *ConversationStore) Clear() error {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM turns`); err != nil {
		return fmt.Errorf("clearing turns: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM kv WHERE key = ?`, KeySummary); err != nil {
		return fmt.Errorf("clearing summary: %w", err)
	}
	return tx.Commit()
}

// Search finds turns matching every word of query using FTS5. Results are
// oldest first. Limit of 0 defaults to 20.
func (s *ConversationStore) Search(query string, limit int) ([]domain.Turn, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.sql.Query(
		`SELECT t.id, t.role, t.text, t.timestamp
		 FROM turns_fts
		 JOIN turns t ON t.seq = turns_fts.rowid
		 WHERE turns_fts MATCH ?
		 ORDER BY t.seq
		 LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// ftsQuery quotes each word so user input never hits FTS5 query syntax.
func ftsQuery(q string) string {
	words := strings.Fields(q)
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(words, " ")
}

func scanTurns(rows *sql.Rows) ([]domain.Turn, error) {
	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var ts string
		if err := rows.Scan(&t.ID, &t.Role, &t.Text, &ts); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("turn %s: bad timestamp: %w", t.ID, err)
		}
		t.Timestamp = parsed.UTC()
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
