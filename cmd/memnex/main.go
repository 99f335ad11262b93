// Command memnex is a local-first personal-memory engine for Claude
// Code: it ingests append-only JSONL session logs into a searchable
// SQLite+FTS5 store and exposes that store through the verbs in
// internal/cli.CLI. Entrypoint shape grounded on cmd/goclaw/main.go's
// kong.Parse/ctx.Run dispatch.
package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/memnexus/memnex/internal/cli"
	"github.com/memnexus/memnex/internal/config"
	. "github.com/memnexus/memnex/internal/logging"
)

func main() {
	c := cli.CLI{}
	kctx := kong.Parse(&c,
		kong.Name("memnex"),
		kong.Description("A local-first personal-memory engine for Claude Code."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	level := LevelInfo
	if err == nil {
		level = cfg.LogLevelInt()
	}
	if c.Verbose {
		level = LevelDebug
	} else if c.Quiet {
		level = LevelWarn
	}
	Init(&Config{Level: level, ShowCaller: false})

	formatter := cli.NewFormatter(os.Stdout, os.Stderr, c.JSON, c.Verbose, c.Quiet)
	runErr := kctx.Run(&cli.Context{Formatter: formatter})
	if runErr != nil {
		os.Exit(formatter.EmitError(runErr))
	}
}
