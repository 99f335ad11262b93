package cli

import (
	"fmt"

	"github.com/memnexus/memnex/internal/memerr"
)

// CompletionCmd prints a shell completion script, §6.
type CompletionCmd struct {
	Shell string `arg:"" help:"Shell to generate a completion script for." enum:"bash,zsh,fish"`
}

func (c *CompletionCmd) Run(ctx *Context) error {
	var script string
	switch c.Shell {
	case "bash":
		script = bashCompletion
	case "zsh":
		script = zshCompletion
	case "fish":
		script = fishCompletion
	default:
		return memerr.New(memerr.CodeInvalidArgument, "unsupported shell "+c.Shell)
	}
	fmt.Fprintln(ctx.Formatter.Out, script)
	return nil
}

const bashCompletion = `_memnex_completions() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    if [ "$COMP_CWORD" -eq 1 ]; then
        COMPREPLY=($(compgen -W "sync search list stats show context related purge export import doctor completion" -- "$cur"))
    fi
}
complete -F _memnex_completions memnex`

const zshCompletion = `#compdef memnex
_memnex() {
    local -a commands
    commands=(
        'sync:ingest new session logs into the store'
        'search:full-text search across sessions'
        'list:list recent sessions'
        'stats:show aggregate store statistics'
        'show:show one session in full'
        'context:show a project aggregate context'
        'related:walk the link graph from one item'
        'purge:delete sessions older than a duration'
        'export:write the store to a JSON file'
        'import:restore the store from a JSON file'
        'doctor:run diagnostics'
        'completion:print a shell completion script'
    )
    _describe 'command' commands
}
_memnex`

const fishCompletion = `complete -c memnex -f -n "__fish_use_subcommand" -a "sync search list stats show context related purge export import doctor completion"`
