package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GetExtractionState retrieves the tracked ingestion progress for a
// session file path, or (nil, nil) if the file has never been seen.
func (s *Store) GetExtractionState(path string) (*ExtractionState, error) {
	row := s.db.QueryRow(`
		SELECT session_file_path, mtime, size_bytes, last_extracted_line, last_extracted_at, session_id, status
		FROM extraction_state WHERE session_file_path = ?
	`, path)
	return scanExtractionState(row)
}

// UpsertExtractionState records or updates a file's ingestion progress.
// Called both mid-file (status=in_progress, after a chunk flush) and at
// file completion (status=complete), always inside the same per-file
// transaction as the Message/ToolUse inserts it accompanies.
func UpsertExtractionState(tx *sql.Tx, st *ExtractionState) error {
	var sessionID sql.NullString
	if st.SessionID != "" {
		sessionID = sql.NullString{String: st.SessionID, Valid: true}
	}
	_, err := tx.Exec(`
		INSERT INTO extraction_state (session_file_path, mtime, size_bytes, last_extracted_line, last_extracted_at, session_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_file_path) DO UPDATE SET
			mtime = excluded.mtime,
			size_bytes = excluded.size_bytes,
			last_extracted_line = excluded.last_extracted_line,
			last_extracted_at = excluded.last_extracted_at,
			session_id = excluded.session_id,
			status = excluded.status
	`, st.SessionFilePath, st.Mtime.Format(time.RFC3339Nano), st.SizeBytes, st.LastExtractedLine,
		st.LastExtractedAt.Format(time.RFC3339Nano), sessionID, string(st.Status))
	if err != nil {
		return fmt.Errorf("upsert extraction_state: %w", err)
	}
	return nil
}

// ListExtractionStates returns every tracked file, used by export.
func (s *Store) ListExtractionStates() ([]*ExtractionState, error) {
	rows, err := s.db.Query(`
		SELECT session_file_path, mtime, size_bytes, last_extracted_line, last_extracted_at, session_id, status
		FROM extraction_state
	`)
	if err != nil {
		return nil, fmt.Errorf("list extraction states: %w", err)
	}
	defer rows.Close()

	var out []*ExtractionState
	for rows.Next() {
		st, err := scanExtractionStateRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanExtractionState(r rowScanner) (*ExtractionState, error) {
	return scanExtractionStateCommon(r)
}

func scanExtractionStateRows(r *sql.Rows) (*ExtractionState, error) {
	return scanExtractionStateCommon(r)
}

func scanExtractionStateCommon(r rowScanner) (*ExtractionState, error) {
	var st ExtractionState
	var mtime string
	var lastExtractedAt string
	var sessionID sql.NullString
	var status string

	err := r.Scan(&st.SessionFilePath, &mtime, &st.SizeBytes, &st.LastExtractedLine, &lastExtractedAt, &sessionID, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan extraction_state: %w", err)
	}

	st.Mtime, err = time.Parse(time.RFC3339Nano, mtime)
	if err != nil {
		return nil, fmt.Errorf("parse mtime: %w", err)
	}
	st.LastExtractedAt, err = time.Parse(time.RFC3339Nano, lastExtractedAt)
	if err != nil {
		return nil, fmt.Errorf("parse last_extracted_at: %w", err)
	}
	if sessionID.Valid {
		st.SessionID = sessionID.String
	}
	st.Status = ExtractionStatus(status)
	return &st, nil
}
