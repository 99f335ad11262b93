// Package search implements memnex's ranked full-text search over
// indexed message content, grounded on the teacher's
// internal/memorygraph.Searcher.ftsSearch (BM25 scoring via the FTS5
// bm25() function, min/max score normalization to 0-1) trimmed down to
// pure FTS ranking: the teacher's RRF fusion of vector+fts+graph+recency
// sources has no place here since memnex carries no embedding provider.
package search

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/memnexus/memnex/internal/memerr"
)

// Options filters and bounds a search call.
type Options struct {
	Limit         int
	ProjectFilter string // case-insensitive substring on decoded project name
	SessionFilter string // exact session id
	Roles         []string
	Since         *time.Time
	Before        *time.Time // exclusive
	CaseSensitive bool
}

// Result is one ranked match.
type Result struct {
	SessionID string
	MessageID string
	Role      string
	Score     float64 // normalized to [0, 1]
	Timestamp time.Time
	Snippet   string
}

const (
	snippetMaxRunes  = 200
	snippetMarkStart = "<mark>"
	snippetMarkEnd   = "</mark>"
)

// Search runs a ranked full-text query against db, returning at most
// opts.Limit results ordered by score descending, ties broken by
// timestamp descending. The second return value reports whether the
// case-sensitive post-filter discarded any row (§4.E final clause); it
// is always false when opts.CaseSensitive is false.
func Search(db *sql.DB, query string, opts Options) ([]Result, bool, error) {
	if strings.TrimSpace(query) == "" {
		return nil, false, memerr.New(memerr.CodeInvalidArgument, "search query must not be empty").WithContext(map[string]any{"code": "EmptyQuery"})
	}
	if opts.Limit < 1 {
		return nil, false, memerr.New(memerr.CodeInvalidArgument, "limit must be >= 1")
	}

	ftsQuery := sanitizeFTSQuery(query)
	if ftsQuery == "" {
		return nil, false, memerr.New(memerr.CodeInvalidArgument, "search query must not be empty").WithContext(map[string]any{"code": "EmptyQuery"})
	}

	fetchLimit := opts.Limit
	if opts.CaseSensitive {
		fetchLimit = opts.Limit * 2
	}

	rows, err := runQuery(db, ftsQuery, opts, fetchLimit)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	type raw struct {
		sessionID string
		messageID string
		role      string
		bm25      float64
		timestamp time.Time
		content   string
	}
	var all []raw
	for rows.Next() {
		var r raw
		var ts string
		if err := rows.Scan(&r.sessionID, &r.messageID, &r.role, &ts, &r.content, &r.bm25); err != nil {
			return nil, false, fmt.Errorf("scan search row: %w", err)
		}
		r.timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, false, fmt.Errorf("parse timestamp: %w", err)
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	// BM25 returns more-negative-is-better; flip sign then min-max
	// normalize to [0, 1], exactly as the teacher's ftsSearch does.
	minScore, maxScore := 0.0, 0.0
	for i := range all {
		all[i].bm25 = -all[i].bm25
		if i == 0 || all[i].bm25 < minScore {
			minScore = all[i].bm25
		}
		if i == 0 || all[i].bm25 > maxScore {
			maxScore = all[i].bm25
		}
	}
	scoreRange := maxScore - minScore

	results := make([]Result, 0, len(all))
	filtered := false
	for _, r := range all {
		score := 1.0
		if scoreRange > 0 {
			score = (r.bm25 - minScore) / scoreRange
		}
		snippet := buildSnippet(r.content, query, opts.CaseSensitive)
		if opts.CaseSensitive && !strings.Contains(stripMarks(snippet), query) {
			filtered = true
			continue
		}
		results = append(results, Result{
			SessionID: r.sessionID,
			MessageID: r.messageID,
			Role:      r.role,
			Score:     score,
			Timestamp: r.timestamp,
			Snippet:   snippet,
		})
		if len(results) == opts.Limit {
			break
		}
	}

	return results, filtered, nil
}

func runQuery(db *sql.DB, ftsQuery string, opts Options, limit int) (*sql.Rows, error) {
	query := `
		SELECT m.session_id, m.id, m.role, m.timestamp, m.content, bm25(messages_fts) as score
		FROM messages_fts f
		JOIN messages m ON m.rowid = f.rowid
		JOIN sessions s ON s.id = m.session_id
		WHERE messages_fts MATCH ?
	`
	args := []any{ftsQuery}

	if opts.ProjectFilter != "" {
		query += " AND s.project_name LIKE ? ESCAPE '\\'"
		args = append(args, "%"+escapeLike(opts.ProjectFilter)+"%")
	}
	if opts.SessionFilter != "" {
		query += " AND m.session_id = ?"
		args = append(args, opts.SessionFilter)
	}
	if len(opts.Roles) > 0 {
		placeholders := make([]string, len(opts.Roles))
		for i, r := range opts.Roles {
			placeholders[i] = "?"
			args = append(args, r)
		}
		query += " AND m.role IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if opts.Since != nil {
		query += " AND m.timestamp >= ?"
		args = append(args, opts.Since.Format(time.RFC3339))
	}
	if opts.Before != nil {
		query += " AND m.timestamp < ?"
		args = append(args, opts.Before.Format(time.RFC3339))
	}

	query += " ORDER BY score, m.timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	return rows, nil
}

// sanitizeFTSQuery strips FTS5 operator syntax from free-form user input,
// drops FTS5 keywords (and/or/not/near) and single-character words, then
// joins the rest into an OR-of-prefixes query, grounded on the teacher's
// memorygraph.sanitizeFTSQuery.
func sanitizeFTSQuery(query string) string {
	replacer := strings.NewReplacer(
		"\"", "", "'", "", "*", "", "(", "", ")", "", ":", "", "^", "",
		"-", " ", "+", " ", ".", " ", ",", " ", ";", " ",
		"[", "", "]", "", "{", "", "}", "", "<", "", ">", "",
		"/", " ", "\\", " ", "@", "", "#", "", "$", "", "%", "",
		"&", "", "!", "", "?", "", "~", "", "`", "", "|", " ",
	)
	cleaned := strings.TrimSpace(replacer.Replace(query))
	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return ""
	}

	filtered := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		if w == "and" || w == "or" || w == "not" || w == "near" {
			continue
		}
		if len(w) < 2 {
			continue
		}
		filtered = append(filtered, w+"*")
	}
	if len(filtered) == 0 {
		return ""
	}
	return strings.Join(filtered, " OR ")
}

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

// buildSnippet finds the first occurrence of any query word in content
// (case-insensitive unless caseSensitive is set), wraps it in <mark>...</mark>, and clips the result to
// snippetMaxRunes runes (runewidth-aware so a clip never splits a
// multi-byte rune in half).
func buildSnippet(content, query string, caseSensitive bool) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return clipRunes(content, snippetMaxRunes)
	}

	haystack := content
	searchIn := haystack
	if !caseSensitive {
		searchIn = strings.ToLower(haystack)
	}

	idx := -1
	matchLen := 0
	for _, w := range words {
		needle := w
		if !caseSensitive {
			needle = strings.ToLower(w)
		}
		if i := strings.Index(searchIn, needle); i >= 0 && (idx == -1 || i < idx) {
			idx = i
			matchLen = len(needle)
		}
	}
	if idx == -1 {
		return clipRunes(content, snippetMaxRunes)
	}

	marked := haystack[:idx] + snippetMarkStart + haystack[idx:idx+matchLen] + snippetMarkEnd + haystack[idx+matchLen:]
	return centerClip(marked, idx, snippetMaxRunes)
}

// centerClip trims a marked string to roughly snippetMaxRunes runes,
// centered on the match position, without splitting runes or the mark
// sentinels (the sentinels are ASCII so byte/rune offsets inside them
// never matter).
func centerClip(s string, matchByteOffset, maxRunes int) string {
	runes := []rune(s)
	if runewidth.StringWidth(s) <= maxRunes {
		return s
	}

	// Approximate the match's rune offset from its byte offset in the
	// unmarked prefix (marks are ASCII, so counting runes up to
	// matchByteOffset is exact for any multi-byte content before it).
	matchRune := len([]rune(s[:matchByteOffset]))

	half := maxRunes / 2
	start := matchRune - half
	if start < 0 {
		start = 0
	}
	end := start + maxRunes
	if end > len(runes) {
		end = len(runes)
		start = end - maxRunes
		if start < 0 {
			start = 0
		}
	}

	clipped := string(runes[start:end])
	if start > 0 {
		clipped = "…" + clipped
	}
	if end < len(runes) {
		clipped = clipped + "…"
	}
	return clipped
}

func clipRunes(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "…"
}

// stripMarks removes the <mark>/</mark> sentinels, used by the
// case-sensitive exact-substring check (§8 invariant 8).
func stripMarks(snippet string) string {
	s := strings.ReplaceAll(snippet, snippetMarkStart, "")
	s = strings.ReplaceAll(s, snippetMarkEnd, "")
	return s
}
