package cli

import (
	"strings"

	"github.com/memnexus/memnex/internal/memerr"
)

// ShowCmd shows one session by full id or unique prefix, §6.
type ShowCmd struct {
	SessionID string `arg:"" help:"Full session id or a unique prefix."`
	Tools     bool   `help:"Include each tool use recorded in the session."`
}

// SessionDetail is show's JSON payload.
type SessionDetail struct {
	SessionID    string   `json:"session_id"`
	ProjectName  string   `json:"project_name"`
	ProjectPath  string   `json:"project_path"`
	MessageCount int      `json:"message_count"`
	ToolUseNames []string `json:"tool_uses,omitempty"`
}

func (c *ShowCmd) Run(ctx *Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := st.FindSessionByPrefix(c.SessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return memerr.New(memerr.CodeSessionNotFound, "no session matches "+c.SessionID)
	}

	detail := SessionDetail{
		SessionID:    sess.ID,
		ProjectName:  sess.ProjectName,
		ProjectPath:  sess.ProjectPathDecoded,
		MessageCount: sess.MessageCount,
	}
	if c.Tools {
		uses, err := st.ListToolUsesBySession(sess.ID)
		if err != nil {
			return err
		}
		for _, u := range uses {
			detail.ToolUseNames = append(detail.ToolUseNames, u.Name)
		}
	}

	return ctx.Formatter.Emit(detail, func(f *Formatter) string {
		var b strings.Builder
		b.WriteString(detail.SessionID)
		b.WriteString("  ")
		b.WriteString(detail.ProjectName)
		b.WriteString("  ")
		b.WriteString(formatCount("message", detail.MessageCount))
		if f.Mode == ModeVerbose {
			b.WriteString("\n  path: ")
			b.WriteString(detail.ProjectPath)
		}
		if c.Tools {
			b.WriteString("\n  tools: ")
			if len(detail.ToolUseNames) == 0 {
				b.WriteString("none")
			} else {
				b.WriteString(strings.Join(detail.ToolUseNames, ", "))
			}
		}
		return b.String()
	})
}
