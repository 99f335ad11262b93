package linkgraph

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/memnexus/memnex/internal/memerr"
	"github.com/memnexus/memnex/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "linkgraph.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func upsertSessions(t *testing.T, st *store.Store, ids ...string) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	err := st.WithTx(func(tx *sql.Tx) error {
		for _, id := range ids {
			if err := store.UpsertSession(tx, &store.Session{
				ID: id, ProjectPathDecoded: "/p", ProjectPathEncoded: "-p",
				ProjectName: "p", StartTime: now, UpdatedAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("upsert sessions: %v", err)
	}
}

func upsertLink(t *testing.T, st *store.Store, sourceID, targetID string, weight float64) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	err := st.WithTx(func(tx *sql.Tx) error {
		return store.UpsertLink(tx, &store.Link{
			SourceType: store.LinkSession, SourceID: sourceID,
			TargetType: store.LinkSession, TargetID: targetID,
			Relationship: "related", Weight: weight, CreatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("upsert link %s->%s: %v", sourceID, targetID, err)
	}
}

// TestFindRelatedCycleSafeWithDecay mirrors the concrete scenario of a
// 3-cycle A->B->C->A: find_related(A, max_hops=2) must stop walking back
// into A and return exactly B at hop 1 (weight 0.8) and C at hop 2
// (weight 0.8*0.9=0.72), ordered B then C.
func TestFindRelatedCycleSafeWithDecay(t *testing.T) {
	st := openTestStore(t)
	upsertSessions(t, st, "a", "b", "c")
	upsertLink(t, st, "a", "b", 0.8)
	upsertLink(t, st, "b", "c", 0.9)
	upsertLink(t, st, "c", "a", 0.5)

	got, err := FindRelated(st.DB(), store.LinkSession, "a", 2)
	if err != nil {
		t.Fatalf("find related: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 related nodes, got %d: %+v", len(got), got)
	}
	if got[0].TargetID != "b" || got[0].Hop != 1 || !floatsClose(got[0].Weight, 0.8) {
		t.Errorf("expected b at hop 1 weight 0.8, got %+v", got[0])
	}
	if got[1].TargetID != "c" || got[1].Hop != 2 || !floatsClose(got[1].Weight, 0.72) {
		t.Errorf("expected c at hop 2 weight 0.72, got %+v", got[1])
	}
}

func TestFindRelatedSingleHop(t *testing.T) {
	st := openTestStore(t)
	upsertSessions(t, st, "a", "b", "c")
	upsertLink(t, st, "a", "b", 0.6)
	upsertLink(t, st, "a", "c", 0.9)

	got, err := FindRelated(st.DB(), store.LinkSession, "a", 1)
	if err != nil {
		t.Fatalf("find related: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hop-1 results, got %d", len(got))
	}
	// hop ASC then weight DESC: both hop 1, so c (0.9) before b (0.6).
	if got[0].TargetID != "c" || got[1].TargetID != "b" {
		t.Errorf("expected order [c, b] by weight desc, got [%s, %s]", got[0].TargetID, got[1].TargetID)
	}
}

func TestFindRelatedInvalidMaxHops(t *testing.T) {
	st := openTestStore(t)
	upsertSessions(t, st, "a")

	for _, hops := range []int{0, 4, -1} {
		_, err := FindRelated(st.DB(), store.LinkSession, "a", hops)
		if err == nil {
			t.Fatalf("expected error for max_hops=%d", hops)
		}
		if memerr.As(err).Code != memerr.CodeInvalidArgument {
			t.Errorf("expected InvalidArgument for max_hops=%d, got %v", hops, memerr.As(err).Code)
		}
	}
}

func TestFindRelatedEmptyIsNotAnError(t *testing.T) {
	st := openTestStore(t)
	upsertSessions(t, st, "lonely")

	got, err := FindRelated(st.DB(), store.LinkSession, "lonely", 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no related nodes, got %+v", got)
	}
}

func TestFindRelatedSessionsDropsSourceAndTruncates(t *testing.T) {
	st := openTestStore(t)
	upsertSessions(t, st, "a", "b", "c", "d")
	upsertLink(t, st, "a", "b", 0.9)
	upsertLink(t, st, "a", "c", 0.8)
	upsertLink(t, st, "a", "d", 0.7)
	// a cycle back to a must not appear in the output.
	upsertLink(t, st, "b", "a", 0.95)

	got, err := FindRelatedSessions(st.DB(), "a", 2, 2)
	if err != nil {
		t.Fatalf("find related sessions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected truncation to limit 2, got %d: %+v", len(got), got)
	}
	for _, r := range got {
		if r.SessionID == "a" {
			t.Errorf("source session must not appear in related output, got %+v", got)
		}
	}
	if got[0].SessionID != "b" || got[1].SessionID != "c" {
		t.Errorf("expected order [b, c] by weight desc, got [%s, %s]", got[0].SessionID, got[1].SessionID)
	}
}

func TestFindRelatedSessionsKeepsMaxWeightAcrossPaths(t *testing.T) {
	st := openTestStore(t)
	upsertSessions(t, st, "a", "b", "m")
	// b reachable directly (hop 1, weight 0.5) and via m (hop 2, weight 0.9*0.9=0.81).
	upsertLink(t, st, "a", "b", 0.5)
	upsertLink(t, st, "a", "m", 0.9)
	upsertLink(t, st, "m", "b", 0.9)

	got, err := FindRelatedSessions(st.DB(), "a", 2, 10)
	if err != nil {
		t.Fatalf("find related sessions: %v", err)
	}

	var bResult *RelatedSession
	for i := range got {
		if got[i].SessionID == "b" {
			bResult = &got[i]
		}
	}
	if bResult == nil {
		t.Fatal("expected b in results")
	}
	if !floatsClose(bResult.Weight, 0.81) {
		t.Errorf("expected max weight 0.81 kept for b, got %f", bResult.Weight)
	}
}

func TestTopicsForSessionsSumsAcrossSessions(t *testing.T) {
	st := openTestStore(t)
	upsertSessions(t, st, "a", "b")
	now := time.Now().UTC().Truncate(time.Second)
	err := st.WithTx(func(tx *sql.Tx) error {
		links := []*store.Link{
			{SourceType: store.LinkSession, SourceID: "a", TargetType: store.LinkTopic, TargetID: "sqlite", Relationship: "mentions", Weight: 0.4, CreatedAt: now},
			{SourceType: store.LinkSession, SourceID: "b", TargetType: store.LinkTopic, TargetID: "sqlite", Relationship: "mentions", Weight: 0.3, CreatedAt: now},
			{SourceType: store.LinkSession, SourceID: "a", TargetType: store.LinkTopic, TargetID: "fts5", Relationship: "mentions", Weight: 0.9, CreatedAt: now},
		}
		return store.UpsertLinks(tx, links)
	})
	if err != nil {
		t.Fatalf("setup links: %v", err)
	}

	got, err := TopicsForSessions(st.DB(), []string{"a", "b"}, 10)
	if err != nil {
		t.Fatalf("topics for sessions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 topics, got %d: %+v", len(got), got)
	}
	if got[0].Topic != "fts5" || !floatsClose(got[0].Weight, 0.9) {
		t.Errorf("expected fts5 first with weight 0.9, got %+v", got[0])
	}
	if got[1].Topic != "sqlite" || !floatsClose(got[1].Weight, 0.7) {
		t.Errorf("expected sqlite second with summed weight 0.7, got %+v", got[1])
	}
}

func floatsClose(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
