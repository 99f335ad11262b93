package search

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/memnexus/memnex/internal/memerr"
	"github.com/memnexus/memnex/internal/store"
)

func setupIndexedStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "search.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	now := time.Now().UTC().Truncate(time.Second)
	err = st.WithTx(func(tx *sql.Tx) error {
		if err := store.UpsertSession(tx, &store.Session{
			ID: "s1", ProjectPathDecoded: "/Users/alice/code/memnex", ProjectPathEncoded: "-Users-alice-code-memnex",
			ProjectName: "memnex", StartTime: now, UpdatedAt: now,
		}); err != nil {
			return err
		}
		return store.InsertMessages(tx, []*store.Message{
			{ID: "m1", SessionID: "s1", Role: store.RoleUser, Content: "I think the search engine needs better ranking", Timestamp: now},
			{ID: "m2", SessionID: "s1", Role: store.RoleAssistant, Content: "Ranking uses BM25 under the hood", Timestamp: now.Add(time.Second)},
			{ID: "m3", SessionID: "s1", Role: store.RoleUser, Content: "Test case with exact Test casing and test lowercase and TEST upper", Timestamp: now.Add(2 * time.Second)},
			{ID: "m4", SessionID: "s1", Role: store.RoleAssistant, Content: "only a lowercase test here", Timestamp: now.Add(3 * time.Second)},
		})
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return st
}

func TestSearchFindsMatchingMessage(t *testing.T) {
	st := setupIndexedStore(t)
	results, _, err := Search(st.DB(), "ranking", Options{Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	for _, r := range results {
		if !strings.Contains(strings.ToLower(stripMarks(r.Snippet)), "ranking") {
			t.Errorf("expected snippet to contain query, got %q", r.Snippet)
		}
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("expected score in [0,1], got %f", r.Score)
		}
	}
}

func TestSearchSnippetHasMarkSentinels(t *testing.T) {
	st := setupIndexedStore(t)
	results, _, err := Search(st.DB(), "ranking", Options{Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	found := false
	for _, r := range results {
		if strings.Contains(r.Snippet, snippetMarkStart) && strings.Contains(r.Snippet, snippetMarkEnd) {
			found = true
		}
	}
	if !found {
		t.Error("expected at least one snippet with mark sentinels")
	}
}

func TestSearchEmptyQueryIsError(t *testing.T) {
	st := setupIndexedStore(t)
	_, _, err := Search(st.DB(), "   ", Options{Limit: 10})
	if err == nil {
		t.Fatal("expected error for empty query")
	}
	if memerr.As(err).Code != memerr.CodeInvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", memerr.As(err).Code)
	}
}

func TestSearchInvalidLimitIsError(t *testing.T) {
	st := setupIndexedStore(t)
	_, _, err := Search(st.DB(), "ranking", Options{Limit: 0})
	if err == nil {
		t.Fatal("expected error for limit < 1")
	}
}

func TestSearchProjectFilter(t *testing.T) {
	st := setupIndexedStore(t)
	results, _, err := Search(st.DB(), "ranking", Options{Limit: 10, ProjectFilter: "memnex"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results for matching project filter")
	}

	none, _, err := Search(st.DB(), "ranking", Options{Limit: 10, ProjectFilter: "nonexistent"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no results for non-matching project filter, got %d", len(none))
	}
}

func TestSearchRoleFilter(t *testing.T) {
	st := setupIndexedStore(t)
	results, _, err := Search(st.DB(), "ranking", Options{Limit: 10, Roles: []string{"user"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.Role != "user" {
			t.Errorf("expected only user-role results, got %q", r.Role)
		}
	}
}

func TestSearchCaseSensitiveExactSubstring(t *testing.T) {
	st := setupIndexedStore(t)
	results, filtered, err := Search(st.DB(), "Test", Options{Limit: 10, CaseSensitive: true})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one case-sensitive match")
	}
	for _, r := range results {
		if !strings.Contains(stripMarks(r.Snippet), "Test") {
			t.Errorf("expected exact-case substring in snippet, got %q", r.Snippet)
		}
	}
	if !filtered {
		t.Error("expected filtered=true since the message with only a lowercase test should have been dropped")
	}
}

func TestSearchCaseInsensitiveNeverReportsFiltered(t *testing.T) {
	st := setupIndexedStore(t)
	_, filtered, err := Search(st.DB(), "ranking", Options{Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if filtered {
		t.Error("expected filtered=false when CaseSensitive is not set")
	}
}

func TestSanitizeFTSQueryStripsOperators(t *testing.T) {
	got := sanitizeFTSQuery(`"hello" AND (world)`)
	if strings.Contains(got, `"`) || strings.Contains(got, "(") || strings.Contains(got, ")") {
		t.Errorf("expected operators stripped, got %q", got)
	}
}

func TestSanitizeFTSQueryEmptyAfterStripping(t *testing.T) {
	got := sanitizeFTSQuery(`***---...`)
	if got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
}
