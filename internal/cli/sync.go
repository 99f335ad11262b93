package cli

import (
	"github.com/memnexus/memnex/internal/lifecycle"
	"github.com/memnexus/memnex/internal/store"
	"github.com/memnexus/memnex/internal/syncpipeline"
)

// SyncCmd ingests session files into the store, §6.
type SyncCmd struct {
	Force   bool   `help:"Reprocess files even if unchanged since the last sync."`
	Project string `help:"Only sync files whose decoded project path contains this substring."`
	Session string `help:"Only sync the file for this exact session id."`
	DryRun  bool   `help:"Discover and report what would sync, without writing to the store." name:"dry-run"`
}

func (c *SyncCmd) Run(ctx *Context) error {
	opts := syncpipeline.Options{
		Force:         c.Force,
		ProjectFilter: c.Project,
		SessionFilter: c.Session,
		DryRun:        c.DryRun,
	}

	var st *store.Store
	if !c.DryRun {
		s, err := openStore()
		if err != nil {
			return err
		}
		st = s
		defer st.Close()

		ctrl := lifecycle.New()
		id := ctrl.Register(func() { st.Close() })
		defer ctrl.Deregister(id)
		ctrl.Install()
		defer ctrl.Stop()

		opts.CheckpointEnabled = true
		opts.ShouldAbort = ctrl.ShouldAbort
	}

	result, err := syncpipeline.Sync(st, opts)
	if err != nil {
		return err
	}
	return emitSyncResult(ctx, result)
}

func emitSyncResult(ctx *Context, result *syncpipeline.Result) error {
	return ctx.Formatter.Emit(result, func(f *Formatter) string {
		line := formatCount("file", result.Processed) + " processed, " +
			formatCount("file", result.Skipped) + " skipped, " +
			formatCount("message", result.MessagesInserted) + " inserted"
		if result.ToolUsesInserted > 0 {
			line += ", " + formatCount("tool use", result.ToolUsesInserted) + " recorded"
		}
		if result.Aborted {
			line += " (aborted)"
		}
		if len(result.Errors) > 0 && f.Mode == ModeVerbose {
			for _, fe := range result.Errors {
				line += "\n  " + fe.Path + ": " + string(fe.Kind) + ": " + fe.Reason
			}
		} else if len(result.Errors) > 0 {
			line += ", " + formatCount("error", len(result.Errors))
		}
		return line
	})
}
