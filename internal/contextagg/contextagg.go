// Package contextagg builds the per-project aggregate view consumed by
// `memnex context`. Grounded on internal/memorygraph/manager.go's
// Stats (sequential COUNT/GROUP BY queries folded into one flat
// struct) generalized from a whole-database summary to a
// project-scoped one, with the Link Graph supplying the recent-topics
// grouping memorygraph's own Stats has no equivalent of.
package contextagg

import (
	"time"

	"github.com/memnexus/memnex/internal/linkgraph"
	"github.com/memnexus/memnex/internal/store"
)

// maxRecentTopics and maxRecentToolUses bound the two ranked slices in
// ProjectContext, per §4.J.
const (
	maxRecentTopics   = 10
	maxRecentToolUses = 10
)

// ToolUseCount is one entry of RecentToolUses.
type ToolUseCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ProjectContext is the aggregate view for one project.
type ProjectContext struct {
	ProjectName        string         `json:"project_name"`
	ProjectPathDecoded string         `json:"project_path_decoded"`
	SessionCount       int            `json:"session_count"`
	TotalMessages      int            `json:"total_messages"`
	UserMessages       int            `json:"user_messages"`
	AssistantMessages  int            `json:"assistant_messages"`
	RecentTopics       []string       `json:"recent_topics"`
	RecentToolUses     []ToolUseCount `json:"recent_tool_uses"`
	LastActivity       time.Time      `json:"last_activity"`
}

// Options bounds the aggregate to a trailing window.
type Options struct {
	// Days, if > 0, restricts to sessions whose start_time falls within
	// an inclusive-today window of the last Days days (start-of-today
	// minus Days-1 days).
	Days int
}

// Build returns the aggregate view for the project whose name
// case-insensitively contains projectSubstring, or (nil, nil) if no
// session matches.
func Build(st *store.Store, projectSubstring string, opts Options) (*ProjectContext, error) {
	listOpts := store.ListSessionsOptions{ProjectFilter: projectSubstring, Sort: store.SortRecent}
	if opts.Days > 0 {
		since := startOfWindow(opts.Days)
		listOpts.Since = &since
	}

	sessions, err := st.ListSessions(listOpts)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	sessionIDs := make([]string, len(sessions))
	totalMessages := 0
	lastActivity := sessions[0].StartTime
	for i, s := range sessions {
		sessionIDs[i] = s.ID
		totalMessages += s.MessageCount
		if s.StartTime.After(lastActivity) {
			lastActivity = s.StartTime
		}
		if s.EndTime != nil && s.EndTime.After(lastActivity) {
			lastActivity = *s.EndTime
		}
	}

	userMessages, err := st.CountMessagesByRole(sessionIDs, store.RoleUser)
	if err != nil {
		return nil, err
	}
	assistantMessages, err := st.CountMessagesByRole(sessionIDs, store.RoleAssistant)
	if err != nil {
		return nil, err
	}

	topicWeights, err := linkgraph.TopicsForSessions(st.DB(), sessionIDs, maxRecentTopics)
	if err != nil {
		return nil, err
	}
	topics := make([]string, len(topicWeights))
	for i, tw := range topicWeights {
		topics[i] = tw.Topic
	}

	toolCounts, err := st.TopToolUses(sessionIDs, maxRecentToolUses)
	if err != nil {
		return nil, err
	}
	toolUses := make([]ToolUseCount, len(toolCounts))
	for i, tc := range toolCounts {
		toolUses[i] = ToolUseCount{Name: tc.Name, Count: tc.Count}
	}

	return &ProjectContext{
		ProjectName:        sessions[0].ProjectName,
		ProjectPathDecoded: sessions[0].ProjectPathDecoded,
		SessionCount:       len(sessions),
		TotalMessages:      totalMessages,
		UserMessages:       userMessages,
		AssistantMessages:  assistantMessages,
		RecentTopics:       topics,
		RecentToolUses:     toolUses,
		LastActivity:       lastActivity,
	}, nil
}

// startOfWindow returns start-of-today minus (days-1) days, the
// inclusive-today lower bound §4.J specifies for the `days=N` filter.
func startOfWindow(days int) time.Time {
	now := time.Now().UTC()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return startOfToday.AddDate(0, 0, -(days - 1))
}
