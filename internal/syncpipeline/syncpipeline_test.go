package syncpipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/memnexus/memnex/internal/pathcodec"
	"github.com/memnexus/memnex/internal/store"
)

// withTempHome points paths.SourceDir (via $HOME) at a temp directory for
// the duration of the test, mirroring internal/checkpoint's own
// temp-HOME test pattern.
func withTempHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", dir)
	t.Cleanup(func() { os.Setenv("HOME", oldHome) })
	return dir
}

// writeSessionFile creates <home>/.claude/projects/<encoded>/<sessionID>.jsonl
// with lines as its content, returning the encoded project directory name.
func writeSessionFile(t *testing.T, home, projectPath, sessionID string, lines []string) string {
	t.Helper()
	encoded := pathcodec.Encode(projectPath)
	dir := filepath.Join(home, ".claude", "projects", encoded)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("mkdir project dir: %v", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write session file: %v", err)
	}
	return encoded
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

const sampleSession = `{"type":"user","uuid":"u1","timestamp":"2026-01-01T00:00:00Z","message":{"role":"user","content":[{"type":"text","text":"list the files"}]}}
{"type":"assistant","uuid":"a1","parentUuid":"u1","timestamp":"2026-01-01T00:00:01Z","message":{"role":"assistant","content":[{"type":"text","text":"running ls"},{"type":"tool_use","id":"t1","name":"bash","input":{"cmd":"ls"}}]}}
{"type":"tool_result","toolUseId":"t1","timestamp":"2026-01-01T00:00:02Z","content":"file1\nfile2","isError":false}
{"type":"assistant","uuid":"a2","parentUuid":"a1","timestamp":"2026-01-01T00:00:03Z","message":{"role":"assistant","content":[{"type":"text","text":"found two files"}]}}`

func TestSyncDiscoversAndPersistsMessagesAndToolUses(t *testing.T) {
	home := withTempHome(t)
	writeSessionFile(t, home, "/home/alice/code/memnex", "sess-1", strings.Split(sampleSession, "\n"))
	st := openTestStore(t)

	result, err := Sync(st, Options{CheckpointEnabled: true})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Discovered != 1 || result.Processed != 1 || result.Skipped != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.MessagesInserted != 3 || result.ToolUsesInserted != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}

	sess, err := st.GetSession("sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess == nil {
		t.Fatal("expected session to be persisted")
	}
	if sess.ProjectName != "memnex" || sess.MessageCount != 3 {
		t.Errorf("unexpected session: %+v", sess)
	}

	msgs, err := st.ListMessagesBySession("sess-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}

	tu, err := st.GetToolUse("t1")
	if err != nil {
		t.Fatalf("get tool use: %v", err)
	}
	if tu == nil {
		t.Fatal("expected tool use t1 to be persisted")
	}
	if tu.Status != store.ToolUseStatusSuccess || tu.Result != "file1\nfile2" || tu.MessageID != "a1" {
		t.Errorf("unexpected tool use: %+v", tu)
	}

	state, err := st.GetExtractionState(filepath.Join(home, ".claude", "projects", pathcodec.Encode("/home/alice/code/memnex"), "sess-1.jsonl"))
	if err != nil {
		t.Fatalf("get extraction state: %v", err)
	}
	if state == nil || state.Status != store.ExtractionComplete {
		t.Errorf("expected complete extraction state, got %+v", state)
	}
}

func TestSyncSkipsUnchangedFileOnSecondRun(t *testing.T) {
	home := withTempHome(t)
	writeSessionFile(t, home, "/home/alice/code/memnex", "sess-1", strings.Split(sampleSession, "\n"))
	st := openTestStore(t)

	if _, err := Sync(st, Options{}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	result, err := Sync(st, Options{})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.Processed != 0 || result.Skipped != 1 {
		t.Fatalf("expected second run to skip unchanged file, got %+v", result)
	}
}

func TestSyncForceReprocessesUnchangedFile(t *testing.T) {
	home := withTempHome(t)
	writeSessionFile(t, home, "/home/alice/code/memnex", "sess-1", strings.Split(sampleSession, "\n"))
	st := openTestStore(t)

	if _, err := Sync(st, Options{}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	result, err := Sync(st, Options{Force: true})
	if err != nil {
		t.Fatalf("forced sync: %v", err)
	}
	if result.Processed != 1 || result.Skipped != 0 {
		t.Fatalf("expected forced run to reprocess, got %+v", result)
	}
}

func TestSyncProjectFilterExcludesNonMatching(t *testing.T) {
	home := withTempHome(t)
	writeSessionFile(t, home, "/home/alice/code/memnex", "sess-1", strings.Split(sampleSession, "\n"))
	writeSessionFile(t, home, "/home/alice/code/otherproj", "sess-2", strings.Split(sampleSession, "\n"))
	st := openTestStore(t)

	result, err := Sync(st, Options{ProjectFilter: "memnex"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Discovered != 1 || result.Processed != 1 {
		t.Fatalf("expected project filter to narrow discovery to 1 file, got %+v", result)
	}

	sess, err := st.GetSession("sess-2")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess != nil {
		t.Error("expected filtered-out project's session to not be synced")
	}
}

func TestSyncDryRunDoesNotWriteToStore(t *testing.T) {
	home := withTempHome(t)
	writeSessionFile(t, home, "/home/alice/code/memnex", "sess-1", strings.Split(sampleSession, "\n"))
	st := openTestStore(t)

	result, err := Sync(nil, Options{DryRun: true})
	// DryRun passes a nil store only when the caller also never touches
	// it; Sync itself guards every store access behind !opts.DryRun.
	if err != nil {
		t.Fatalf("dry run sync: %v", err)
	}
	if result.MessagesInserted != 3 || result.ToolUsesInserted != 1 {
		t.Fatalf("expected dry run to still report parsed counts, got %+v", result)
	}

	sess, err := st.GetSession("sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess != nil {
		t.Error("expected dry run to never write to the store")
	}
}

func TestSyncAbortStopsBeforeNextFile(t *testing.T) {
	home := withTempHome(t)
	writeSessionFile(t, home, "/home/alice/code/memnex", "sess-1", strings.Split(sampleSession, "\n"))
	writeSessionFile(t, home, "/home/alice/code/memnex2", "sess-2", strings.Split(sampleSession, "\n"))
	st := openTestStore(t)

	result, err := Sync(st, Options{ShouldAbort: func() bool { return true }})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !result.Aborted {
		t.Error("expected result.Aborted to be true")
	}
	if result.Processed != 0 {
		t.Errorf("expected no files processed before the first abort check, got %+v", result)
	}
}

func TestSyncNoSourceDirectoryIsNotAnError(t *testing.T) {
	withTempHome(t)
	st := openTestStore(t)

	result, err := Sync(st, Options{})
	if err != nil {
		t.Fatalf("expected no error when source dir is absent, got %v", err)
	}
	if result.Discovered != 0 {
		t.Errorf("expected zero discovered files, got %+v", result)
	}
}

func TestClassifyErrorTaxonomy(t *testing.T) {
	cases := []struct {
		reason string
		want   ErrorKind
	}{
		{"open /tmp/x.jsonl: no such file or directory", ErrorFileNotFound},
		{"parse line 4: invalid character 'x' looking for beginning of value", ErrorInvalidJSON},
		{"upsert session: database is locked", ErrorStoreError},
		{"something unexpected happened", ErrorUnknown},
	}
	for _, c := range cases {
		got := classifyError("/tmp/x.jsonl", errString(c.reason))
		if got.Kind != c.want {
			t.Errorf("classifyError(%q) = %v, want %v", c.reason, got.Kind, c.want)
		}
	}
}

type errString string

func (e errString) Error() string { return string(e) }
