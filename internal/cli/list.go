package cli

import (
	"strings"

	"github.com/memnexus/memnex/internal/store"
)

// ListCmd lists sessions, §6.
type ListCmd struct {
	Limit   int    `help:"Maximum results." default:"20"`
	Project string `help:"Restrict to sessions whose project name contains this substring."`
	Since   string `help:"Only sessions starting at or after this date."`
	Before  string `help:"Only sessions starting strictly before this date."`
	Days    int    `help:"Only sessions from the trailing N days." xor:"window"`
	Sort    string `help:"Sort order: recent, oldest, or largest." enum:"recent,oldest,largest" default:"recent"`
}

func (c *ListCmd) Run(ctx *Context) error {
	if err := daysConflict(c.Days, c.Since, c.Before); err != nil {
		return err
	}

	opts := store.ListSessionsOptions{
		Limit:         c.Limit,
		ProjectFilter: c.Project,
		Sort:          store.ListSort(c.Sort),
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

	sessions, err := st.ListSessions(opts)
	if err != nil {
		return err
	}

	return ctx.Formatter.Emit(sessions, func(f *Formatter) string {
		if len(sessions) == 0 {
			return "no sessions"
		}
		var b strings.Builder
		for i, s := range sessions {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(s.ID[:minInt(8, len(s.ID))])
			b.WriteString("  ")
			b.WriteString(s.ProjectName)
			b.WriteString("  ")
			b.WriteString(formatCount("message", s.MessageCount))
			b.WriteString("  ")
			b.WriteString(relativeTime(s.StartTime))
			if f.Mode == ModeVerbose {
				b.WriteString("\n    path: ")
				b.WriteString(s.ProjectPathDecoded)
			}
		}
		return b.String()
	})
}
