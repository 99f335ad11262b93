package cli

import (
	"strings"

	"github.com/memnexus/memnex/internal/contextagg"
	"github.com/memnexus/memnex/internal/memerr"
)

// ContextCmd shows a project's aggregate context, §6.
type ContextCmd struct {
	Project string `arg:"" help:"Project name substring."`
	Days    int    `help:"Restrict to the trailing N days."`
	Format  string `help:"Detail level: brief or detailed." enum:"brief,detailed" default:"brief"`
}

func (c *ContextCmd) Run(ctx *Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	pc, err := contextagg.Build(st, c.Project, contextagg.Options{Days: c.Days})
	if err != nil {
		return err
	}
	if pc == nil {
		return memerr.New(memerr.CodeSessionNotFound, "no sessions found for project "+c.Project)
	}

	return ctx.Formatter.Emit(pc, func(f *Formatter) string {
		var b strings.Builder
		b.WriteString(pc.ProjectName)
		b.WriteString(": ")
		b.WriteString(formatCount("session", pc.SessionCount))
		b.WriteString(", ")
		b.WriteString(formatCount("message", pc.TotalMessages))
		b.WriteString(" (")
		b.WriteString(formatCount("user", pc.UserMessages))
		b.WriteString(", ")
		b.WriteString(formatCount("assistant", pc.AssistantMessages))
		b.WriteString(")")
		b.WriteString("\n  last activity: ")
		b.WriteString(relativeTime(pc.LastActivity))

		if c.Format == "detailed" || f.Mode == ModeVerbose {
			if len(pc.RecentTopics) > 0 {
				b.WriteString("\n  topics: ")
				b.WriteString(strings.Join(pc.RecentTopics, ", "))
			}
			if len(pc.RecentToolUses) > 0 {
				b.WriteString("\n  tools:")
				for _, tc := range pc.RecentToolUses {
					b.WriteString("\n    ")
					b.WriteString(tc.Name)
					b.WriteString(": ")
					b.WriteString(formatCount("use", tc.Count))
				}
			}
		}
		return b.String()
	})
}
