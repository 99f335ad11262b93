package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/memnexus/memnex/internal/memerr"
)

// withNonTerminalStdio points Stdin/Stdout at pipe ends (never
// terminals) for the duration of the test, restoring the real files
// afterward.
func withNonTerminalStdio(t *testing.T) {
	t.Helper()
	inR, inW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	oldIn, oldOut := Stdin, Stdout
	Stdin, Stdout = inR, outW
	t.Cleanup(func() {
		Stdin, Stdout = oldIn, oldOut
		inR.Close()
		inW.Close()
		outR.Close()
		outW.Close()
	})
}

func TestShouldAbortDefaultsFalse(t *testing.T) {
	c := New()
	if c.ShouldAbort() {
		t.Error("expected fresh controller to not be aborted")
	}
}

func TestAbortAndClearAbort(t *testing.T) {
	c := New()
	c.Abort()
	if !c.ShouldAbort() {
		t.Error("expected ShouldAbort true after Abort")
	}
	c.ClearAbort()
	if c.ShouldAbort() {
		t.Error("expected ShouldAbort false after ClearAbort")
	}
}

func TestRegisterDeregisterRunCleanup(t *testing.T) {
	c := New()
	var ran []string

	id1 := c.Register(func() { ran = append(ran, "first") })
	c.Register(func() { ran = append(ran, "second") })
	c.Deregister(id1)

	c.runCleanup()

	if len(ran) != 1 || ran[0] != "second" {
		t.Errorf("expected only the non-deregistered cleanup to run, got %v", ran)
	}
}

func TestRunCleanupSurvivesPanickingCleanup(t *testing.T) {
	c := New()
	var ranAfterPanic bool

	c.Register(func() { panic("boom") })
	c.Register(func() { ranAfterPanic = true })

	c.runCleanup()

	if !ranAfterPanic {
		t.Error("expected cleanup after a panicking one to still run")
	}
}

func TestHandleSignalNonTerminalDefaultsToGracefulAbort(t *testing.T) {
	withNonTerminalStdio(t)
	c := New()

	c.handleSignal(os.Interrupt)

	if !c.ShouldAbort() {
		t.Error("expected non-terminal stdio to default to graceful abort")
	}
}

func TestOpenStoreWithRecoveryPassesThroughHealthyOpen(t *testing.T) {
	withNonTerminalStdio(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.db")

	st, err := OpenStoreWithRecovery(path)
	if err != nil {
		t.Fatalf("expected healthy open to succeed, got %v", err)
	}
	defer st.Close()
}

func TestOpenStoreWithRecoveryNonTerminalReturnsOriginalError(t *testing.T) {
	withNonTerminalStdio(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.db")
	if err := os.WriteFile(path, []byte("not a sqlite file at all, but long enough to look like one maybe"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	_, err := OpenStoreWithRecovery(path)
	if err == nil {
		t.Fatal("expected corrupted database to fail to open")
	}
	me := memerr.As(err)
	if me.Code != memerr.CodeDBCorrupted {
		t.Errorf("expected DB_CORRUPTED, got %v", me.Code)
	}

	if _, statErr := os.Stat(path); statErr != nil {
		t.Errorf("expected corrupt file to be left in place on non-terminal stdio, stat failed: %v", statErr)
	}
	matches, _ := filepath.Glob(path + ".corrupted.*")
	if len(matches) != 0 {
		t.Errorf("expected no quarantine to happen on non-terminal stdio, got %v", matches)
	}
}
