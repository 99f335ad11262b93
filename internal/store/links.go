package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertLink inserts l or, if its (source, target, relationship) key
// already exists, replaces its weight and created_at. Grounded on the
// teacher's unique index on (source_uuid, target_uuid, relation_type) in
// memorygraph's associations table, generalized to memnex's polymorphic
// endpoint types.
func UpsertLink(tx *sql.Tx, l *Link) error {
	_, err := tx.Exec(`
		INSERT INTO links (source_type, source_id, target_type, target_id, relationship, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_type, source_id, target_type, target_id, relationship) DO UPDATE SET
			weight = excluded.weight,
			created_at = excluded.created_at
	`, string(l.SourceType), l.SourceID, string(l.TargetType), l.TargetID, l.Relationship,
		l.Weight, l.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert link: %w", err)
	}
	return nil
}

// UpsertLinks is the multi-row convenience used by the sync pipeline and
// the content extractor's derived topic/entity links.
func UpsertLinks(tx *sql.Tx, links []*Link) error {
	for _, l := range links {
		if err := UpsertLink(tx, l); err != nil {
			return err
		}
	}
	return nil
}

// OutgoingLinks returns every link whose source is (sourceType, sourceID),
// the base case (hop 1) of a link graph traversal.
func (s *Store) OutgoingLinks(sourceType LinkEndpointType, sourceID string) ([]*Link, error) {
	rows, err := s.db.Query(`
		SELECT source_type, source_id, target_type, target_id, relationship, weight, created_at
		FROM links WHERE source_type = ? AND source_id = ?
	`, string(sourceType), sourceID)
	if err != nil {
		return nil, fmt.Errorf("query outgoing links: %w", err)
	}
	defer rows.Close()

	var out []*Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AllLinks returns every link row, used by export and by tests.
func (s *Store) AllLinks() ([]*Link, error) {
	rows, err := s.db.Query(`
		SELECT source_type, source_id, target_type, target_id, relationship, weight, created_at
		FROM links
	`)
	if err != nil {
		return nil, fmt.Errorf("query all links: %w", err)
	}
	defer rows.Close()

	var out []*Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLink(r *sql.Rows) (*Link, error) {
	var l Link
	var sourceType, targetType, createdAt string
	if err := r.Scan(&sourceType, &l.SourceID, &targetType, &l.TargetID, &l.Relationship, &l.Weight, &createdAt); err != nil {
		return nil, fmt.Errorf("scan link: %w", err)
	}
	l.SourceType = LinkEndpointType(sourceType)
	l.TargetType = LinkEndpointType(targetType)
	var err error
	l.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &l, nil
}
