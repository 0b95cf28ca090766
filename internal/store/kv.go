package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/soyeahso/aide/internal/domain"
)

// Fixed keys of the local key-value store. Each value is a JSON document.
const (
	KeyPersona       = "persona"
	KeyCredential    = "credential"
	KeySummary       = "conversation.summary"
	KeyTheme         = "theme"
	KeyAccessibility = "accessibility"
)

// Keys lists every key the store accepts.
var Keys = []string{KeyPersona, KeyCredential, KeySummary, KeyTheme, KeyAccessibility}

// ErrUnknownKey is returned for keys outside Keys.
var ErrUnknownKey = errors.New("unknown key")

// KV is a small JSON key-value store over the kv table.
type KV struct {
	db *DB
}

// NewKV creates a key-value store using the given database.
func NewKV(db *DB) *KV {
	return &KV{db: db}
}

func checkKey(key string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("%w %q", ErrUnknownKey, key)
	}
	return nil
}

// GetRaw returns the stored JSON for key. ok is false when the key is unset.
func (k *KV) GetRaw(key string) (json.RawMessage, bool, error) {
	if err := checkKey(key); err != nil {
		return nil, false, err
	}
	var value string
	err := k.db.sql.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return json.RawMessage(value), true, nil
}

// Get decodes the value stored at key into v. ok is false when the key is
// unset, in which case v is untouched.
func (k *KV) Get(key string, v any) (bool, error) {
	raw, ok, err := k.GetRaw(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Set stores v as JSON at key.
func (k *KV) Set(key string, v any) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return k.setRaw(k.db.sql, key, data)
}

// SetRaw stores already-encoded JSON at key.
func (k *KV) SetRaw(key string, raw json.RawMessage) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if !json.Valid(raw) {
		return fmt.Errorf("value for %s is not valid JSON", key)
	}
	return k.setRaw(k.db.sql, key, raw)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (k *KV) setRaw(ex execer, key string, data []byte) error {
	_, err := ex.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete unsets key.
func (k *KV) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := k.db.sql.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// All returns every set key with its raw value.
func (k *KV) All() (map[string]json.RawMessage, error) {
	rows, err := k.db.sql.Query(`SELECT key, value FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = json.RawMessage(value)
	}
	return out, rows.Err()
}

// Persona returns the saved persona, if any.
func (k *KV) Persona() (domain.Persona, bool, error) {
	var p domain.Persona
	ok, err := k.Get(KeyPersona, &p)
	return p, ok, err
}

// Credential returns the saved API credential, or "".
func (k *KV) Credential() (string, error) {
	var c string
	_, err := k.Get(KeyCredential, &c)
	return c, err
}

// Preferences returns the saved theme and accessibility settings, with
// defaults for anything unset.
func (k *KV) Preferences() (domain.Preferences, error) {
	prefs := domain.DefaultPreferences()
	if _, err := k.Get(KeyTheme, &prefs.Theme); err != nil {
		return prefs, err
	}
	if _, err := k.Get(KeyAccessibility, &prefs.Accessibility); err != nil {
		return prefs, err
	}
	return prefs, nil
}

// SetPreferences saves theme and accessibility settings.
func (k *KV) SetPreferences(p domain.Preferences) error {
	if err := k.Set(KeyTheme, p.Theme); err != nil {
		return err
	}
	return k.Set(KeyAccessibility, p.Accessibility)
}
