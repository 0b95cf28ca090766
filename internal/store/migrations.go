package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create kv",
		SQL: `
			CREATE TABLE kv (
				key         TEXT PRIMARY KEY,
				value       TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 2,
		Name:    "create turns with FTS5",
		SQL: `
			CREATE TABLE turns (
				seq         INTEGER PRIMARY KEY AUTOINCREMENT,
				id          TEXT NOT NULL UNIQUE,
				role        TEXT NOT NULL,
				text        TEXT NOT NULL,
				timestamp   TEXT NOT NULL
			);

			CREATE VIRTUAL TABLE turns_fts USING fts5(
				text,
				content='turns',
				content_rowid='seq'
			);

			CREATE TRIGGER turns_ai AFTER INSERT ON turns BEGIN
				INSERT INTO turns_fts(rowid, text) VALUES (new.seq, new.text);
			END;

			CREATE TRIGGER turns_ad AFTER DELETE ON turns BEGIN
				INSERT INTO turns_fts(turns_fts, rowid, text) VALUES ('delete', old.seq, old.text);
			END;

			CREATE TRIGGER turns_au AFTER UPDATE ON turns BEGIN
				INSERT INTO turns_fts(turns_fts, rowid, text) VALUES ('delete', old.seq, old.text);
				INSERT INTO turns_fts(rowid, text) VALUES (new.seq, new.text);
			END;
		`,
	},
}
