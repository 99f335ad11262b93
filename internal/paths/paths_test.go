package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBaseDirUnderHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	base, err := BaseDir()
	if err != nil {
		t.Fatalf("BaseDir failed: %v", err)
	}
	want := filepath.Join(home, ".memory-nexus")
	if base != want {
		t.Errorf("BaseDir() = %q, want %q", base, want)
	}
}

func TestDataPathJoinsSubpath(t *testing.T) {
	base, err := BaseDir()
	if err != nil {
		t.Fatalf("BaseDir failed: %v", err)
	}
	got, err := DataPath("memory.db")
	if err != nil {
		t.Fatalf("DataPath failed: %v", err)
	}
	want := filepath.Join(base, "memory.db")
	if got != want {
		t.Errorf("DataPath(%q) = %q, want %q", "memory.db", got, want)
	}
}

func TestDBAndCheckpointPaths(t *testing.T) {
	db, err := DBPath()
	if err != nil {
		t.Fatalf("DBPath failed: %v", err)
	}
	if filepath.Base(db) != "memory.db" {
		t.Errorf("DBPath() = %q, want basename memory.db", db)
	}

	cp, err := CheckpointPath()
	if err != nil {
		t.Fatalf("CheckpointPath failed: %v", err)
	}
	if filepath.Base(cp) != "sync-checkpoint.json" {
		t.Errorf("CheckpointPath() = %q, want basename sync-checkpoint.json", cp)
	}
}

func TestSourceDirUnderHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	got, err := SourceDir()
	if err != nil {
		t.Fatalf("SourceDir failed: %v", err)
	}
	want := filepath.Join(home, ".claude", "projects")
	if got != want {
		t.Errorf("SourceDir() = %q, want %q", got, want)
	}
}

func TestConfigPathPrefersLocal(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	if err := os.WriteFile("config.json", []byte("{}"), 0600); err != nil {
		t.Fatalf("write local config.json: %v", err)
	}

	got, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath failed: %v", err)
	}
	abs, _ := filepath.Abs("config.json")
	if got != abs {
		t.Errorf("ConfigPath() = %q, want local %q", got, abs)
	}
}

func TestConfigPathEmptyWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	got, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath failed: %v", err)
	}
	if got != "" {
		t.Errorf("ConfigPath() = %q, want empty when no config exists anywhere reachable", got)
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	cases := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/foo/bar", filepath.Join(home, "foo", "bar")},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
	}
	for _, c := range cases {
		got, err := ExpandTilde(c.in)
		if err != nil {
			t.Fatalf("ExpandTilde(%q) failed: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ExpandTilde(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEnsureDirCreatesNested(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "c")
	if err := EnsureDir(target); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		t.Errorf("expected directory at %q", target)
	}
}
