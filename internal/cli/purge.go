package cli

import (
	"database/sql"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	. "github.com/memnexus/memnex/internal/logging"
	"github.com/memnexus/memnex/internal/memerr"
	"github.com/memnexus/memnex/internal/store"
)

// PurgeCmd deletes sessions older than a duration, §6.
type PurgeCmd struct {
	OlderThan string `required:"" help:"Age cutoff, e.g. 30d, 6m, 1y." name:"older-than"`
	DryRun    bool   `help:"Report what would be deleted without deleting." name:"dry-run"`
	Force     bool   `help:"Skip the confirmation prompt."`
}

var durationPattern = regexp.MustCompile(`(?i)^([1-9][0-9]*)([dmy])$`)

// parseDuration implements §6's purge duration grammar: `d` subtracts N
// days (N*86400s), `m` and `y` subtract N calendar months/years via
// time.AddDate so "1m" lands on the same day of the prior month rather
// than an approximate 30-day offset.
func parseDuration(s string) (time.Time, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, memerr.New(memerr.CodeInvalidArgument, "invalid duration "+s+", expected e.g. 30d, 6m, 1y")
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, memerr.New(memerr.CodeInvalidArgument, "invalid duration "+s)
	}
	now := time.Now().UTC()
	switch strings.ToLower(m[2]) {
	case "d":
		return now.Add(-time.Duration(n) * 24 * time.Hour), nil
	case "m":
		return now.AddDate(0, -n, 0), nil
	case "y":
		return now.AddDate(-n, 0, 0), nil
	}
	return time.Time{}, memerr.New(memerr.CodeInvalidArgument, "invalid duration "+s)
}

// PurgeResult is purge's JSON payload.
type PurgeResult struct {
	SessionsDeleted int      `json:"sessions_deleted"`
	SessionIDs      []string `json:"session_ids,omitempty"`
	DryRun          bool     `json:"dry_run"`
}

func (c *PurgeCmd) Run(ctx *Context) error {
	cutoff, err := parseDuration(c.OlderThan)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	sessions, err := st.ListSessions(store.ListSessionsOptions{Before: &cutoff, Sort: store.SortOldest})
	if err != nil {
		return err
	}

	if c.DryRun || len(sessions) == 0 {
		return emitPurgeResult(ctx, sessions, true)
	}

	if !c.Force && !confirmPurge(len(sessions)) {
		return memerr.New(memerr.CodeInvalidArgument, "purge cancelled")
	}

	err = st.WithTx(func(tx *sql.Tx) error {
		for _, s := range sessions {
			if err := store.DeleteSession(tx, s.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return memerr.Wrap(memerr.CodeDBConnectionFailed, "purge sessions", err)
	}
	L_info("cli: purged sessions", "count", len(sessions), "older_than", c.OlderThan)

	return emitPurgeResult(ctx, sessions, false)
}

func emitPurgeResult(ctx *Context, sessions []*store.Session, dryRun bool) error {
	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}
	result := PurgeResult{SessionsDeleted: len(sessions), SessionIDs: ids, DryRun: dryRun}
	return ctx.Formatter.Emit(result, func(f *Formatter) string {
		verb := "deleted"
		if dryRun {
			verb = "would delete"
		}
		return verb + " " + formatCount("session", len(sessions))
	})
}

// confirmPurge asks for confirmation before an irreversible purge, the
// same huh.NewConfirm shape internal/lifecycle uses for its corruption
// recovery prompt. A form error (non-terminal stdio, ctrl-c) defaults to
// "no" — the safer outcome for a destructive operation.
func confirmPurge(count int) bool {
	proceed := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Purge sessions").
				Description(formatCount("session", count) + " will be permanently deleted. Continue?").
				Value(&proceed),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return proceed
}

// confirmClearImport asks for confirmation before `import --clear`
// wipes the existing store, the same shape as confirmPurge.
func confirmClearImport() bool {
	proceed := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Import with --clear").
				Description("Every existing row will be deleted before restoring the export file. Continue?").
				Value(&proceed),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return proceed
}
