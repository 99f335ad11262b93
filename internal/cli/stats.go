package cli

import (
	"sort"
	"strings"

	"github.com/memnexus/memnex/internal/store"
)

// StatsCmd reports store-wide totals and a per-project breakdown, §6.
type StatsCmd struct {
	Projects int `help:"Number of top projects to show." default:"10"`
}

// ProjectStat is one row of stats's per-project breakdown.
type ProjectStat struct {
	ProjectName  string `json:"project_name"`
	SessionCount int    `json:"session_count"`
	MessageCount int    `json:"message_count"`
}

// StatsReport is the full stats JSON payload.
type StatsReport struct {
	TotalSessions int           `json:"total_sessions"`
	TotalMessages int           `json:"total_messages"`
	TopProjects   []ProjectStat `json:"top_projects"`
}

func (c *StatsCmd) Run(ctx *Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions(store.ListSessionsOptions{})
	if err != nil {
		return err
	}

	byProject := make(map[string]*ProjectStat)
	totalMessages := 0
	for _, s := range sessions {
		totalMessages += s.MessageCount
		ps, ok := byProject[s.ProjectName]
		if !ok {
			ps = &ProjectStat{ProjectName: s.ProjectName}
			byProject[s.ProjectName] = ps
		}
		ps.SessionCount++
		ps.MessageCount += s.MessageCount
	}

	projects := make([]ProjectStat, 0, len(byProject))
	for _, ps := range byProject {
		projects = append(projects, *ps)
	}
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].SessionCount != projects[j].SessionCount {
			return projects[i].SessionCount > projects[j].SessionCount
		}
		return projects[i].ProjectName < projects[j].ProjectName
	})
	if c.Projects > 0 && len(projects) > c.Projects {
		projects = projects[:c.Projects]
	}

	report := StatsReport{
		TotalSessions: len(sessions),
		TotalMessages: totalMessages,
		TopProjects:   projects,
	}

	return ctx.Formatter.Emit(report, func(f *Formatter) string {
		var b strings.Builder
		b.WriteString(formatCount("session", report.TotalSessions))
		b.WriteString(", ")
		b.WriteString(formatCount("message", report.TotalMessages))
		for _, ps := range report.TopProjects {
			b.WriteString("\n  ")
			b.WriteString(ps.ProjectName)
			b.WriteString(": ")
			b.WriteString(formatCount("session", ps.SessionCount))
			b.WriteString(", ")
			b.WriteString(formatCount("message", ps.MessageCount))
		}
		return b.String()
	})
}
