package cli

import (
	"github.com/memnexus/memnex/internal/lifecycle"
	"github.com/memnexus/memnex/internal/paths"
	"github.com/memnexus/memnex/internal/store"
)

// CLI is the top-level kong command set, §6's verb table.
type CLI struct {
	JSON    bool `help:"Emit the JSON result/error envelope instead of human text." name:"json"`
	Verbose bool `help:"Include error causes and extra detail." short:"v" xor:"verbosity"`
	Quiet   bool `help:"Suppress non-error output." short:"q" xor:"verbosity"`

	Sync       SyncCmd       `cmd:"" help:"Sync Claude Code session files into the store."`
	Search     SearchCmd     `cmd:"" help:"Full-text search over indexed message content."`
	List       ListCmd       `cmd:"" help:"List sessions."`
	Stats      StatsCmd      `cmd:"" help:"Show store-wide statistics."`
	Show       ShowCmd       `cmd:"" help:"Show one session."`
	Context    ContextCmd    `cmd:"" help:"Show a project's aggregate context."`
	Related    RelatedCmd    `cmd:"" help:"Show items related to one, by the link graph."`
	Purge      PurgeCmd      `cmd:"" help:"Delete sessions older than a duration."`
	Export     ExportCmd     `cmd:"" help:"Export the store to a JSON file."`
	Import     ImportCmd     `cmd:"" help:"Import a JSON export file."`
	Doctor     DoctorCmd     `cmd:"" help:"Diagnose the local installation."`
	Completion CompletionCmd `cmd:"" help:"Print a shell completion script."`
}

// Context is threaded through every verb's Run method, grounded on
// cmd/goclaw/main.go's Context struct.
type Context struct {
	Formatter *Formatter
}

// openStore resolves the store's on-disk path and opens it with
// lifecycle's corruption-recovery prompt.
func openStore() (*store.Store, error) {
	path, err := paths.DBPath()
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureParentDir(path); err != nil {
		return nil, err
	}
	return lifecycle.OpenStoreWithRecovery(path)
}
