package store

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertToolUses writes a batch of tool uses within tx, replacing any
// existing row with the same id (the sync pipeline re-inserts a tool use
// once its matching result arrives on a later line of the same file).
func InsertToolUses(tx *sql.Tx, uses []*ToolUse) error {
	stmt, err := tx.Prepare(`
		INSERT INTO tool_uses (id, session_id, message_id, name, input, result, has_result, status, timestamp, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			message_id = excluded.message_id,
			name = excluded.name,
			input = excluded.input,
			result = excluded.result,
			has_result = excluded.has_result,
			status = excluded.status,
			timestamp = excluded.timestamp,
			duration_ms = excluded.duration_ms
	`)
	if err != nil {
		return fmt.Errorf("prepare insert tool_use: %w", err)
	}
	defer stmt.Close()

	for _, u := range uses {
		var messageID sql.NullString
		if u.MessageID != "" {
			messageID = sql.NullString{String: u.MessageID, Valid: true}
		}
		var result sql.NullString
		if u.HasResult {
			result = sql.NullString{String: u.Result, Valid: true}
		}
		var durationMS sql.NullInt64
		if u.DurationMS != nil {
			durationMS = sql.NullInt64{Int64: int64(*u.DurationMS), Valid: true}
		}
		if _, err := stmt.Exec(u.ID, u.SessionID, messageID, u.Name, u.Input, result, boolToInt(u.HasResult),
			string(u.Status), u.Timestamp.Format(time.RFC3339), durationMS); err != nil {
			return fmt.Errorf("insert tool_use %s: %w", u.ID, err)
		}
	}
	return nil
}

// GetToolUse retrieves a tool use by id.
func (s *Store) GetToolUse(id string) (*ToolUse, error) {
	row := s.db.QueryRow(`
		SELECT id, session_id, message_id, name, input, result, has_result, status, timestamp, duration_ms
		FROM tool_uses WHERE id = ?
	`, id)
	return scanToolUse(row)
}

// ListToolUsesBySession returns every tool use recorded for a session, in
// timestamp order.
func (s *Store) ListToolUsesBySession(sessionID string) ([]*ToolUse, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, message_id, name, input, result, has_result, status, timestamp, duration_ms
		FROM tool_uses WHERE session_id = ? ORDER BY timestamp ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list tool uses: %w", err)
	}
	defer rows.Close()

	var out []*ToolUse
	for rows.Next() {
		u, err := scanToolUseRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListAllToolUses returns every tool use in the store, oldest first. Used
// by export.
func (s *Store) ListAllToolUses() ([]*ToolUse, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, message_id, name, input, result, has_result, status, timestamp, duration_ms
		FROM tool_uses ORDER BY timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list all tool uses: %w", err)
	}
	defer rows.Close()

	var out []*ToolUse
	for rows.Next() {
		u, err := scanToolUseRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ToolUseCount summarizes tool name frequency across a set of sessions,
// used by the context aggregator's recent_tool_uses field.
type ToolUseCount struct {
	Name  string
	Count int
}

// TopToolUses returns the most frequent tool names used across sessionIDs,
// limited to limit entries.
func (s *Store) TopToolUses(sessionIDs []string, limit int) ([]ToolUseCount, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	query, args := inClause("SELECT name, COUNT(*) as n FROM tool_uses WHERE session_id IN (", sessionIDs)
	query += " GROUP BY name ORDER BY n DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("top tool uses: %w", err)
	}
	defer rows.Close()

	var out []ToolUseCount
	for rows.Next() {
		var c ToolUseCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanToolUse(r rowScanner) (*ToolUse, error) {
	return scanToolUseCommon(r)
}

func scanToolUseRows(r *sql.Rows) (*ToolUse, error) {
	return scanToolUseCommon(r)
}

func scanToolUseCommon(r rowScanner) (*ToolUse, error) {
	var u ToolUse
	var messageID sql.NullString
	var result sql.NullString
	var hasResult int
	var status string
	var timestamp string
	var durationMS sql.NullInt64

	err := r.Scan(&u.ID, &u.SessionID, &messageID, &u.Name, &u.Input, &result, &hasResult, &status, &timestamp, &durationMS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan tool_use: %w", err)
	}

	if messageID.Valid {
		u.MessageID = messageID.String
	}
	u.HasResult = hasResult != 0
	if result.Valid {
		u.Result = result.String
	}
	u.Status = ToolUseStatus(status)
	u.Timestamp, err = time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	if durationMS.Valid {
		d := int(durationMS.Int64)
		u.DurationMS = &d
	}
	return &u, nil
}
