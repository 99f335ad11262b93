package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// InsertMessages writes a batch of messages within tx, replacing any
// existing row with the same id. Callers (the sync pipeline) are expected
// to call this once per chunk within a single per-file transaction.
func InsertMessages(tx *sql.Tx, msgs []*Message) error {
	stmt, err := tx.Prepare(`
		INSERT INTO messages (id, session_id, role, content, timestamp, parent_id, is_sidechain, tool_use_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			role = excluded.role,
			content = excluded.content,
			timestamp = excluded.timestamp,
			parent_id = excluded.parent_id,
			is_sidechain = excluded.is_sidechain,
			tool_use_ids = excluded.tool_use_ids
	`)
	if err != nil {
		return fmt.Errorf("prepare insert message: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		toolUseIDs, err := json.Marshal(m.ToolUseIDs)
		if err != nil {
			return fmt.Errorf("marshal tool_use_ids for message %s: %w", m.ID, err)
		}
		var parentID sql.NullString
		if m.ParentID != "" {
			parentID = sql.NullString{String: m.ParentID, Valid: true}
		}
		if _, err := stmt.Exec(m.ID, m.SessionID, string(m.Role), m.Content,
			m.Timestamp.Format(time.RFC3339), parentID, boolToInt(m.IsSidechain), string(toolUseIDs)); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}
	return nil
}

// GetMessage retrieves a message by id.
func (s *Store) GetMessage(id string) (*Message, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, role, content, timestamp, parent_id, is_sidechain, tool_use_ids
		FROM messages WHERE id = ?
	`, id)
	return scanMessage(row)
}

// ListMessagesBySession returns every message in a session, in stream
// order (oldest timestamp first).
func (s *Store) ListMessagesBySession(sessionID string) ([]*Message, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, timestamp, parent_id, is_sidechain, tool_use_ids
		FROM messages WHERE session_id = ? ORDER BY timestamp ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessageRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListAllMessages returns every message in the store, oldest first. Used
// by export, which buffers the whole database into one document.
func (s *Store) ListAllMessages() ([]*Message, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, timestamp, parent_id, is_sidechain, tool_use_ids
		FROM messages ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessageRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMessagesBySession is used to validate Session.message_count stays
// in sync with its rows (a universal invariant of the data model).
func (s *Store) CountMessagesBySession(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&n)
	return n, err
}

// CountMessagesByRole is used by the context aggregator's user/assistant
// message breakdown.
func (s *Store) CountMessagesByRole(sessionIDs []string, role Role) (int, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	query, args := inClause("SELECT COUNT(*) FROM messages WHERE role = ? AND session_id IN (", sessionIDs)
	args = append([]any{string(role)}, args...)
	var n int
	err := s.db.QueryRow(query, args...).Scan(&n)
	return n, err
}

func scanMessage(r rowScanner) (*Message, error) {
	return scanMessageCommon(r)
}

func scanMessageRows(r *sql.Rows) (*Message, error) {
	return scanMessageCommon(r)
}

func scanMessageCommon(r rowScanner) (*Message, error) {
	var m Message
	var role string
	var timestamp string
	var parentID sql.NullString
	var isSidechain int
	var toolUseIDsRaw string

	err := r.Scan(&m.ID, &m.SessionID, &role, &m.Content, &timestamp, &parentID, &isSidechain, &toolUseIDsRaw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}

	m.Role = Role(role)
	m.IsSidechain = isSidechain != 0
	if parentID.Valid {
		m.ParentID = parentID.String
	}
	m.Timestamp, err = time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	if toolUseIDsRaw != "" {
		if err := json.Unmarshal([]byte(toolUseIDsRaw), &m.ToolUseIDs); err != nil {
			return nil, fmt.Errorf("unmarshal tool_use_ids: %w", err)
		}
	}
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// inClause builds "<prefix>?, ?, ...)" for a variable-length IN list and
// returns the matching args, following the teacher's pattern of building
// parameterized IN clauses rather than string-interpolating values.
func inClause(prefix string, values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	placeholders := ""
	for i := range values {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
	}
	return prefix + placeholders + ")", args
}
