package store

import (
	"database/sql"
	"fmt"

	. "github.com/memnexus/memnex/internal/logging"
)

// schemaVersion is the current migration level. Grounded on the teacher's
// memorygraph.Migration list; memnex ships a single version so far.
const schemaVersion = 1

// migration is one forward-only schema step.
type migration struct {
	Version int
	Up      string
}

var migrations = []migration{
	{
		Version: 1,
		Up: `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    project_path_decoded TEXT NOT NULL,
    project_path_encoded TEXT NOT NULL,
    project_name TEXT NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT,
    message_count INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_name);
CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_time DESC);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    parent_id TEXT,
    is_sidechain INTEGER NOT NULL DEFAULT 0,
    tool_use_ids TEXT NOT NULL DEFAULT '[]',
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_role ON messages(role);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp DESC);

-- Full-text shadow over message content. messages.id is TEXT, so the FTS
-- index rides the table's implicit rowid rather than a declared integer
-- primary key (the same pattern the transcript package uses for its
-- TEXT-keyed chunks table).
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    content,
    content='messages',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, content) VALUES (NEW.rowid, NEW.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', OLD.rowid, OLD.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', OLD.rowid, OLD.content);
    INSERT INTO messages_fts(rowid, content) VALUES (NEW.rowid, NEW.content);
END;

CREATE TABLE IF NOT EXISTS tool_uses (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    message_id TEXT,
    name TEXT NOT NULL,
    input TEXT NOT NULL DEFAULT '',
    result TEXT,
    has_result INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    duration_ms INTEGER,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE,
    FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_tool_uses_session ON tool_uses(session_id);
CREATE INDEX IF NOT EXISTS idx_tool_uses_message ON tool_uses(message_id);
CREATE INDEX IF NOT EXISTS idx_tool_uses_name ON tool_uses(name);

-- Links are polymorphic over their endpoint types, so unlike
-- sessions/messages/tool_uses there is no single REFERENCES target for a
-- foreign key; endpoint cascade is done explicitly in DeleteSession.
CREATE TABLE IF NOT EXISTS links (
    source_type TEXT NOT NULL,
    source_id TEXT NOT NULL,
    target_type TEXT NOT NULL,
    target_id TEXT NOT NULL,
    relationship TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    created_at TEXT NOT NULL,
    PRIMARY KEY (source_type, source_id, target_type, target_id, relationship)
);
CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_type, source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_type, target_id);

CREATE TABLE IF NOT EXISTS extraction_state (
    session_file_path TEXT PRIMARY KEY,
    mtime TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    last_extracted_line INTEGER NOT NULL DEFAULT 0,
    last_extracted_at TEXT NOT NULL,
    session_id TEXT,
    status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_extraction_state_status ON extraction_state(status);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

// initSchema brings a freshly-opened database up to schemaVersion, running
// only the migrations it hasn't already applied.
func initSchema(db *sql.DB) error {
	var current int
	err := db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&current)
	if err == sql.ErrNoRows {
		current = 0
	} else if err != nil {
		// schema_version itself doesn't exist yet: fresh database.
		current = 0
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := db.Exec(m.Up); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		L_debug("store: applied migration", "version", m.Version)
	}
	return nil
}
