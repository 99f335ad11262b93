package exportimport

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/memnexus/memnex/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "exportimport.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func seedStore(t *testing.T, st *store.Store) {
	t.Helper()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)
	err := st.WithTx(func(tx *sql.Tx) error {
		if err := store.UpsertSession(tx, &store.Session{
			ID: "s1", ProjectPathDecoded: "/home/alice/code/memnex", ProjectPathEncoded: "enc",
			ProjectName: "memnex", StartTime: start, EndTime: &end, MessageCount: 2, UpdatedAt: start,
		}); err != nil {
			return err
		}
		msgs := []*store.Message{
			{ID: "m1", SessionID: "s1", Role: store.RoleUser, Content: "hello", Timestamp: start},
			{ID: "m2", SessionID: "s1", Role: store.RoleAssistant, Content: "hi there", Timestamp: start.Add(time.Minute), ToolUseIDs: []string{"t1"}},
		}
		if err := store.InsertMessages(tx, msgs); err != nil {
			return err
		}
		dur := 120
		if err := store.InsertToolUses(tx, []*store.ToolUse{
			{ID: "t1", SessionID: "s1", MessageID: "m2", Name: "Bash", Input: "ls", Result: "ok", HasResult: true,
				Status: store.ToolUseStatusSuccess, Timestamp: start.Add(time.Minute), DurationMS: &dur},
		}); err != nil {
			return err
		}
		return store.UpsertLink(tx, &store.Link{
			SourceType: store.LinkSession, SourceID: "s1", TargetType: store.LinkTopic, TargetID: "testing",
			Relationship: "about", Weight: 1.0, CreatedAt: start,
		})
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
}

func TestExportWritesAllSections(t *testing.T) {
	st := openTestStore(t)
	seedStore(t, st)
	path := filepath.Join(t.TempDir(), "export.json")

	summary, err := Export(st, path)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if summary.Sessions != 1 || summary.Messages != 2 || summary.ToolUses != 1 || summary.Links != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected export file to exist: %v", err)
	}
}

func TestRoundTripPreservesAllRows(t *testing.T) {
	src := openTestStore(t)
	seedStore(t, src)
	path := filepath.Join(t.TempDir(), "export.json")
	if _, err := Export(src, path); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := openTestStore(t)
	summary, err := Import(dst, path, Options{Clear: true})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Sessions != 1 || summary.Messages != 2 || summary.ToolUses != 1 || summary.Links != 1 {
		t.Errorf("unexpected import summary: %+v", summary)
	}

	sess, err := dst.GetSession("s1")
	if err != nil || sess == nil {
		t.Fatalf("expected session s1 to round-trip, got %v, err %v", sess, err)
	}
	msgs, err := dst.ListMessagesBySession("s1")
	if err != nil || len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d, err %v", len(msgs), err)
	}
	tools, err := dst.ListToolUsesBySession("s1")
	if err != nil || len(tools) != 1 {
		t.Fatalf("expected 1 tool use, got %d, err %v", len(tools), err)
	}
	links, err := dst.AllLinks()
	if err != nil || len(links) != 1 {
		t.Fatalf("expected 1 link, got %d, err %v", len(links), err)
	}
}

func TestImportClearWipesExistingRowsFirst(t *testing.T) {
	dst := openTestStore(t)
	seedStore(t, dst)

	src := openTestStore(t)
	path := filepath.Join(t.TempDir(), "export.json")
	if _, err := Export(src, path); err != nil {
		t.Fatalf("export empty store: %v", err)
	}

	if _, err := Import(dst, path, Options{Clear: true}); err != nil {
		t.Fatalf("import: %v", err)
	}
	count, err := dst.CountSessions()
	if err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 0 {
		t.Errorf("expected cleared store to hold 0 sessions after importing an empty document, got %d", count)
	}
}

func TestImportWithoutClearUpsertsOnTop(t *testing.T) {
	dst := openTestStore(t)
	seedStore(t, dst)

	src := openTestStore(t)
	seedSecondSession(t, src)
	path := filepath.Join(t.TempDir(), "export.json")
	if _, err := Export(src, path); err != nil {
		t.Fatalf("export: %v", err)
	}

	if _, err := Import(dst, path, Options{Clear: false}); err != nil {
		t.Fatalf("import: %v", err)
	}
	count, err := dst.CountSessions()
	if err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 sessions after additive import, got %d", count)
	}
}

func seedSecondSession(t *testing.T, st *store.Store) {
	t.Helper()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	err := st.WithTx(func(tx *sql.Tx) error {
		return store.UpsertSession(tx, &store.Session{
			ID: "s2", ProjectPathDecoded: "/home/alice/code/other", ProjectPathEncoded: "enc2",
			ProjectName: "other", StartTime: start, MessageCount: 0, UpdatedAt: start,
		})
	})
	if err != nil {
		t.Fatalf("seed second session: %v", err)
	}
}

func TestImportRejectsNonExportJSON(t *testing.T) {
	dst := openTestStore(t)
	path := filepath.Join(t.TempDir(), "notanexport.json")
	if err := os.WriteFile(path, []byte(`{"foo": "bar"}`), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := Import(dst, path, Options{}); err == nil {
		t.Fatal("expected an error importing a non-export document")
	}
}

func TestImportRejectsInvalidJSON(t *testing.T) {
	dst := openTestStore(t)
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := Import(dst, path, Options{}); err == nil {
		t.Fatal("expected an error importing malformed JSON")
	}
}
