package cli

import (
	"github.com/memnexus/memnex/internal/exportimport"
)

// ExportCmd writes the store to a JSON export file, §6.
type ExportCmd struct {
	Path string `arg:"" help:"Destination file path." type:"path"`
}

func (c *ExportCmd) Run(ctx *Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	summary, err := exportimport.Export(st, c.Path)
	if err != nil {
		return err
	}
	return ctx.Formatter.Emit(summary, func(f *Formatter) string {
		return "exported " + formatCount("session", summary.Sessions) + ", " +
			formatCount("message", summary.Messages) + ", " +
			formatCount("tool use", summary.ToolUses) + ", " +
			formatCount("link", summary.Links) + " to " + c.Path
	})
}

// ImportCmd restores a JSON export file into the store, §6.
type ImportCmd struct {
	Path  string `arg:"" help:"Export file path to read." type:"path"`
	Clear bool   `help:"Delete every existing row before restoring."`
	Force bool   `help:"Skip the confirmation prompt when --clear is set."`
}

func (c *ImportCmd) Run(ctx *Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if c.Clear && !c.Force && !confirmClearImport() {
		return nil
	}

	summary, err := exportimport.Import(st, c.Path, exportimport.Options{Clear: c.Clear})
	if err != nil {
		return err
	}
	return ctx.Formatter.Emit(summary, func(f *Formatter) string {
		return "imported " + formatCount("session", summary.Sessions) + ", " +
			formatCount("message", summary.Messages) + ", " +
			formatCount("tool use", summary.ToolUses) + ", " +
			formatCount("link", summary.Links) + " from " + c.Path
	})
}
