package cli

import (
	"strings"

	"github.com/memnexus/memnex/internal/memerr"
	"github.com/memnexus/memnex/internal/search"
)

// SearchCmd runs a ranked full-text query, §6.
type SearchCmd struct {
	Query         string `arg:"" help:"Search text."`
	Limit         int    `help:"Maximum results." default:"10"`
	Project       string `help:"Restrict to sessions whose project name contains this substring."`
	Session       string `help:"Restrict to one exact session id."`
	Role          string `help:"Comma-separated list of roles to match (user,assistant,...)."`
	Since         string `help:"Only messages at or after this date."`
	Before        string `help:"Only messages strictly before this date."`
	Days          int    `help:"Only messages from the trailing N days." xor:"window"`
	CaseSensitive bool   `help:"Match case exactly." short:"c" xor:"case"`
	IgnoreCase    bool   `help:"Force case-insensitive matching." short:"i" xor:"case"`
}

func (c *SearchCmd) Run(ctx *Context) error {
	if strings.TrimSpace(c.Query) == "" {
		return memerr.New(memerr.CodeInvalidArgument, "search query must not be empty")
	}
	if err := daysConflict(c.Days, c.Since, c.Before); err != nil {
		return err
	}

	opts := search.Options{
		Limit:         c.Limit,
		ProjectFilter: c.Project,
		SessionFilter: c.Session,
		CaseSensitive: c.CaseSensitive && !c.IgnoreCase,
	}
	if c.Role != "" {
		opts.Roles = strings.Split(c.Role, ",")
	}
	if c.Days > 0 {
		since := startOfWindow(c.Days)
		opts.Since = &since
	} else {
		if c.Since != "" {
			t, err := parseDate("since", c.Since)
			if err != nil {
				return err
			}
			opts.Since = &t
		}
		if c.Before != "" {
			t, err := parseDate("before", c.Before)
			if err != nil {
				return err
			}
			opts.Before = &t
		}
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	results, filtered, err := search.Search(st.DB(), c.Query, opts)
	if err != nil {
		return err
	}

	return ctx.Formatter.Emit(results, func(f *Formatter) string {
		if len(results) == 0 {
			return "no matches"
		}
		var b strings.Builder
		for i, r := range results {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(r.SessionID[:minInt(8, len(r.SessionID))])
			b.WriteString("  ")
			b.WriteString(r.Role)
			b.WriteString("  ")
			b.WriteString(relativeTime(r.Timestamp))
			b.WriteString("\n    ")
			b.WriteString(r.Snippet)
			if f.Mode == ModeVerbose {
				b.WriteString("\n    score: ")
				b.WriteString(formatScore(r.Score))
			}
		}
		if f.Mode == ModeVerbose && filtered {
			b.WriteString("\n(some matches hidden by case-sensitive filter)")
		}
		return b.String()
	})
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func formatScore(score float64) string {
	return trimFloat(score)
}
