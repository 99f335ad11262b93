package store

import (
	"database/sql"
	"fmt"
	"time"

	. "github.com/memnexus/memnex/internal/logging"
)

// UpsertSession inserts s or, if its id already exists, replaces it in
// place. Grounded on the teacher's CreateMemory/UpdateMemory pair in
// memorygraph.Store, collapsed into one call since the sync pipeline
// always wants "insert or replace" semantics for a session's rollup row.
func UpsertSession(tx *sql.Tx, s *Session) error {
	var endTime sql.NullString
	if s.EndTime != nil {
		endTime = sql.NullString{String: s.EndTime.Format(time.RFC3339), Valid: true}
	}

	_, err := tx.Exec(`
		INSERT INTO sessions (id, project_path_decoded, project_path_encoded, project_name, start_time, end_time, message_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_path_decoded = excluded.project_path_decoded,
			project_path_encoded = excluded.project_path_encoded,
			project_name = excluded.project_name,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at
	`, s.ID, s.ProjectPathDecoded, s.ProjectPathEncoded, s.ProjectName,
		s.StartTime.Format(time.RFC3339), endTime, s.MessageCount, s.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by exact id.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, project_path_decoded, project_path_encoded, project_name, start_time, end_time, message_count, updated_at
		FROM sessions WHERE id = ?
	`, id)
	return scanSession(row)
}

// FindSessionByPrefix resolves a unique id prefix to a session, the way
// `memnex show <session-id>` accepts either a full id or a unique prefix.
// It returns (nil, nil) for no match and an error for an ambiguous one.
func (s *Store) FindSessionByPrefix(prefix string) (*Session, error) {
	rows, err := s.db.Query(`
		SELECT id, project_path_decoded, project_path_encoded, project_name, start_time, end_time, message_count, updated_at
		FROM sessions WHERE id LIKE ? || '%' LIMIT 2
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("query session prefix: %w", err)
	}
	defer rows.Close()

	var matches []*Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous session id prefix %q", prefix)
	}
}

// ListSessionsOptions filters ListSessions.
type ListSessionsOptions struct {
	Limit         int
	ProjectFilter string // case-insensitive substring on project_name
	Since         *time.Time
	Before        *time.Time
	Sort          ListSort
}

// ListSort orders ListSessions results.
type ListSort string

const (
	SortRecent  ListSort = "recent"
	SortOldest  ListSort = "oldest"
	SortLargest ListSort = "largest"
)

// ListSessions returns sessions matching opts, most relevant first per the
// requested sort.
func (s *Store) ListSessions(opts ListSessionsOptions) ([]*Session, error) {
	query := `
		SELECT id, project_path_decoded, project_path_encoded, project_name, start_time, end_time, message_count, updated_at
		FROM sessions WHERE 1=1
	`
	var args []any
	if opts.ProjectFilter != "" {
		query += " AND project_name LIKE ? ESCAPE '\\'"
		args = append(args, "%"+escapeLike(opts.ProjectFilter)+"%")
	}
	if opts.Since != nil {
		query += " AND start_time >= ?"
		args = append(args, opts.Since.Format(time.RFC3339))
	}
	if opts.Before != nil {
		query += " AND start_time < ?"
		args = append(args, opts.Before.Format(time.RFC3339))
	}

	switch opts.Sort {
	case SortOldest:
		query += " ORDER BY start_time ASC"
	case SortLargest:
		query += " ORDER BY message_count DESC"
	default:
		query += " ORDER BY start_time DESC"
	}

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and, via foreign keys, its Messages and
// ToolUses. Links are not bound by a foreign key (they are polymorphic
// over endpoint type), so this also explicitly deletes any Link whose
// source or target identifies this session.
func DeleteSession(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`
		DELETE FROM links WHERE (source_type = 'session' AND source_id = ?) OR (target_type = 'session' AND target_id = ?)
	`, id, id); err != nil {
		return fmt.Errorf("delete session links: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	L_debug("store: deleted session", "id", id)
	return nil
}

// CountSessions returns the total number of sessions, used by stats.
func (s *Store) CountSessions() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*Session, error) {
	return scanSessionCommon(r)
}

func scanSessionRows(r *sql.Rows) (*Session, error) {
	return scanSessionCommon(r)
}

func scanSessionCommon(r rowScanner) (*Session, error) {
	var sess Session
	var startTime string
	var endTime sql.NullString
	var updatedAt string

	err := r.Scan(&sess.ID, &sess.ProjectPathDecoded, &sess.ProjectPathEncoded, &sess.ProjectName,
		&startTime, &endTime, &sess.MessageCount, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.StartTime, err = time.Parse(time.RFC3339, startTime)
	if err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	if endTime.Valid {
		t, err := time.Parse(time.RFC3339, endTime.String)
		if err != nil {
			return nil, fmt.Errorf("parse end_time: %w", err)
		}
		sess.EndTime = &t
	}
	sess.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &sess, nil
}

// escapeLike escapes SQLite LIKE metacharacters so a project filter is
// matched as a literal substring, not a pattern.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\', s[i])
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
