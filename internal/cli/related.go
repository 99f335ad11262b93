package cli

import (
	"strconv"
	"strings"

	"github.com/memnexus/memnex/internal/linkgraph"
	"github.com/memnexus/memnex/internal/store"
)

// RelatedCmd walks the link graph from one item, §6.
type RelatedCmd struct {
	ID     string `arg:"" help:"Source id (a session id unless --type says otherwise)."`
	Limit  int    `help:"Maximum results." default:"10"`
	Hops   int    `help:"Maximum hop distance (1-3)." default:"2"`
	Type   string `help:"Endpoint type of ID: session, message, or topic." enum:"session,message,topic" default:"session"`
	Format string `help:"Detail level: brief or detailed." enum:"brief,detailed" default:"brief"`
}

func (c *RelatedCmd) Run(ctx *Context) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if c.Type == "session" {
		related, err := linkgraph.FindRelatedSessions(st.DB(), c.ID, c.Hops, c.Limit)
		if err != nil {
			return err
		}
		return ctx.Formatter.Emit(related, func(f *Formatter) string {
			return renderRelatedSessions(st, related, c.Format == "detailed" || f.Mode == ModeVerbose)
		})
	}

	related, err := linkgraph.FindRelated(st.DB(), store.LinkEndpointType(c.Type), c.ID, c.Hops)
	if err != nil {
		return err
	}
	if c.Limit > 0 && len(related) > c.Limit {
		related = related[:c.Limit]
	}
	return ctx.Formatter.Emit(related, func(f *Formatter) string {
		if len(related) == 0 {
			return "no related items"
		}
		var b strings.Builder
		for i, r := range related {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(string(r.TargetType))
			b.WriteString(":")
			b.WriteString(r.TargetID)
			b.WriteString("  hop=")
			b.WriteString(strconv.Itoa(r.Hop))
			b.WriteString("  weight=")
			b.WriteString(trimFloat(r.Weight))
		}
		return b.String()
	})
}

func renderRelatedSessions(st interface {
	GetSession(id string) (*store.Session, error)
}, related []linkgraph.RelatedSession, detailed bool) string {
	if len(related) == 0 {
		return "no related sessions"
	}
	var b strings.Builder
	for i, r := range related {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.SessionID[:minInt(8, len(r.SessionID))])
		b.WriteString("  hop=")
		b.WriteString(strconv.Itoa(r.Hop))
		b.WriteString("  weight=")
		b.WriteString(trimFloat(r.Weight))
		if detailed {
			if sess, err := st.GetSession(r.SessionID); err == nil && sess != nil {
				b.WriteString("  ")
				b.WriteString(sess.ProjectName)
			}
		}
	}
	return b.String()
}
