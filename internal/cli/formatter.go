// Package cli wires memnex's internal repositories (store, search,
// linkgraph, syncpipeline, contextagg, health, lifecycle,
// exportimport) behind a kong-driven verb set, grounded on
// cmd/goclaw/main.go's `CLI` struct (`cmd:""`-tagged subcommand fields,
// a `*Context` threaded through every `Run` method, `kong.Parse`).
// Unlike the teacher, which dispatches each command's own ad hoc
// fmt.Println calls, every memnex verb renders through the single
// Formatter below, selected once by a constructor keyed on the global
// --json/--verbose/--quiet flags.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/memnexus/memnex/internal/memerr"
)

// Mode is the selected output mode, chosen once per invocation from the
// top-level --json/--verbose/--quiet flags (§6: "every verb may accept
// --json, --verbose/-v, --quiet/-q").
type Mode int

const (
	ModeBrief Mode = iota
	ModeVerbose
	ModeQuiet
	ModeJSON
)

// Formatter renders a command's result, either as the JSON envelope or
// as human text built by the caller's render function.
type Formatter struct {
	Mode Mode
	Out  io.Writer
	Err  io.Writer
}

// NewFormatter selects a Mode from the three mutually-exclusive global
// flags (kong's `xor` tag on Verbose/Quiet enforces --verbose and
// --quiet can't both be set; --json wins over either when present,
// since a structured consumer has no use for a human verbosity level).
func NewFormatter(out, errOut io.Writer, jsonMode, verbose, quiet bool) *Formatter {
	mode := ModeBrief
	switch {
	case jsonMode:
		mode = ModeJSON
	case quiet:
		mode = ModeQuiet
	case verbose:
		mode = ModeVerbose
	}
	return &Formatter{Mode: mode, Out: out, Err: errOut}
}

// Emit renders data. In ModeJSON it marshals data directly. In
// ModeQuiet it prints nothing on success. Otherwise it calls human,
// which receives the Formatter so it can check f.Mode == ModeVerbose
// to decide how much detail to include.
func (f *Formatter) Emit(data any, human func(f *Formatter) string) error {
	switch f.Mode {
	case ModeJSON:
		enc := json.NewEncoder(f.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case ModeQuiet:
		return nil
	default:
		fmt.Fprintln(f.Out, human(f))
		return nil
	}
}

// errorEnvelope is the JSON error shape, §6.
type errorEnvelope struct {
	Error struct {
		Code    memerr.Code    `json:"code"`
		Message string         `json:"message"`
		Context map[string]any `json:"context,omitempty"`
	} `json:"error"`
}

// EmitError prints err as either the JSON envelope or colored-free human
// text, and returns the process exit code §6/§7 assign to it. Stack
// traces (the wrapped Cause chain) are only shown in ModeVerbose.
func (f *Formatter) EmitError(err error) int {
	merr := memerr.As(err)

	if f.Mode == ModeJSON {
		var env errorEnvelope
		env.Error.Code = merr.Code
		env.Error.Message = merr.Message
		env.Error.Context = merr.Context
		enc := json.NewEncoder(f.Err)
		enc.SetIndent("", "  ")
		enc.Encode(&env)
		return merr.ExitCode()
	}

	if f.Mode != ModeQuiet {
		fmt.Fprintf(f.Err, "error: %s\n", merr.Message)
		if f.Mode == ModeVerbose && merr.Cause != nil {
			fmt.Fprintf(f.Err, "  cause: %v\n", merr.Cause)
		}
	}
	return merr.ExitCode()
}
