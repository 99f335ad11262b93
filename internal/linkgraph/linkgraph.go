// Package linkgraph answers "what is related to this node" over the
// store's links table with a single recursive common-table-expression
// query, rather than the teacher's application-side BFS
// (internal/memorygraph.GetRelatedMemories issues one query per hop).
// Spec's design notes reject the BFS shape outright for its N+1 query
// risk and for losing the engine's query optimizer, so this package has
// no Go-side traversal loop at all: hop expansion, weight decay, and
// cycle prevention all happen inside one WITH RECURSIVE statement.
package linkgraph

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/memnexus/memnex/internal/memerr"
	"github.com/memnexus/memnex/internal/store"
)

// Related is one traversal result: the nearest (minimum) hop a node was reached at,
// and the best (maximum) weight seen for it.
type Related struct {
	TargetType store.LinkEndpointType
	TargetID   string
	Hop        int
	Weight     float64
}

// FindRelated walks outgoing links from (sourceType, sourceID) up to
// maxHops away, following §4.F's algorithm: base case is every hop-1
// outgoing link; each recursive step joins the link table back onto the
// prior relation set, multiplies weight by the new edge's weight, and
// rejects any extension whose next node already appears in the
// accumulated path. The final projection groups by target, keeping the
// maximum weight and minimum hop, ordered hop ASC then weight DESC.
func FindRelated(db *sql.DB, sourceType store.LinkEndpointType, sourceID string, maxHops int) ([]Related, error) {
	if maxHops < 1 || maxHops > 3 {
		return nil, memerr.New(memerr.CodeInvalidArgument, "max_hops must be 1, 2, or 3").WithContext(map[string]any{"max_hops": maxHops})
	}

	query := fmt.Sprintf(`
		WITH RECURSIVE reachable(source_type, source_id, target_type, target_id, hop, weight, path) AS (
			SELECT source_type, source_id, target_type, target_id, 1, weight,
				source_type || ':' || source_id || '->' || target_type || ':' || target_id
			FROM links
			WHERE source_type = ? AND source_id = ?

			UNION ALL

			SELECT l.source_type, l.source_id, l.target_type, l.target_id,
				r.hop + 1, r.weight * l.weight,
				r.path || '->' || l.target_type || ':' || l.target_id
			FROM links l
			JOIN reachable r ON l.source_type = r.target_type AND l.source_id = r.target_id
			WHERE r.hop < ?
				AND r.path NOT LIKE '%%' || l.target_type || ':' || l.target_id || '%%'
		)
		SELECT target_type, target_id, MIN(hop) as min_hop, MAX(weight) as max_weight
		FROM reachable
		GROUP BY target_type, target_id
		ORDER BY min_hop ASC, max_weight DESC
	`)

	rows, err := db.Query(query, string(sourceType), sourceID, maxHops)
	if err != nil {
		return nil, fmt.Errorf("recursive link traversal: %w", err)
	}
	defer rows.Close()

	var out []Related
	for rows.Next() {
		var r Related
		var targetType string
		if err := rows.Scan(&targetType, &r.TargetID, &r.Hop, &r.Weight); err != nil {
			return nil, fmt.Errorf("scan related row: %w", err)
		}
		r.TargetType = store.LinkEndpointType(targetType)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RelatedSession is a session-level aggregation result: every distinct
// session reachable from a source session, not including the source
// itself.
type RelatedSession struct {
	SessionID string
	Hop       int
	Weight    float64
}

// FindRelatedSessions runs FindRelated rooted at a session and groups the
// results by target session, per §4.F's "session-level aggregation"
// note: keep max weight per target, drop the source session from the
// output, sort weight DESC then hop ASC, truncate to limit.
func FindRelatedSessions(db *sql.DB, sessionID string, maxHops, limit int) ([]RelatedSession, error) {
	related, err := FindRelated(db, store.LinkSession, sessionID, maxHops)
	if err != nil {
		return nil, err
	}

	byTarget := make(map[string]RelatedSession)
	for _, r := range related {
		if r.TargetType != store.LinkSession {
			continue
		}
		if r.TargetID == sessionID {
			continue
		}
		existing, ok := byTarget[r.TargetID]
		if !ok || r.Weight > existing.Weight {
			byTarget[r.TargetID] = RelatedSession{SessionID: r.TargetID, Hop: r.Hop, Weight: r.Weight}
		}
	}

	out := make([]RelatedSession, 0, len(byTarget))
	for _, v := range byTarget {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Hop < out[j].Hop
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// TopicWeight is a summed-weight aggregate used by the context
// aggregator's recent_topics field.
type TopicWeight struct {
	Topic  string
	Weight float64
}

// TopicsForSessions returns the topics linked from any of sessionIDs,
// summed by weight and ordered highest first, capped at limit.
func TopicsForSessions(db *sql.DB, sessionIDs []string, limit int) ([]TopicWeight, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(sessionIDs))
	args := make([]any, 0, len(sessionIDs)+1)
	for i, id := range sessionIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		SELECT target_id, SUM(weight) as total
		FROM links
		WHERE source_type = 'session' AND target_type = 'topic' AND source_id IN (%s)
		GROUP BY target_id
		ORDER BY total DESC
		LIMIT ?
	`, strings.Join(placeholders, ", "))
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("topics for sessions: %w", err)
	}
	defer rows.Close()

	var out []TopicWeight
	for rows.Next() {
		var t TopicWeight
		if err := rows.Scan(&t.Topic, &t.Weight); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
