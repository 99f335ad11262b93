package cli

import (
	"time"

	"github.com/araddon/dateparse"
	"github.com/memnexus/memnex/internal/memerr"
)

// parseDate accepts ISO-8601 and the loose formats araddon/dateparse
// recognizes (the pack has no library for natural-language relative
// phrases, which is why `--days N` exists as the relative-window
// escape hatch instead).
func parseDate(flagName, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, memerr.New(memerr.CodeInvalidArgument, "invalid "+flagName+" date: "+s)
	}
	return t.UTC(), nil
}

// startOfWindow returns the inclusive-today lower bound for a trailing
// N-day window: start-of-today minus (days-1) days. Matches
// internal/contextagg's `days=N` semantics so --days means the same
// thing everywhere it appears in the CLI.
func startOfWindow(days int) time.Time {
	now := time.Now().UTC()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return startOfToday.AddDate(0, 0, -(days - 1))
}

// daysConflict reports --days used together with --since/--before,
// which §6 lists as mutually exclusive.
func daysConflict(days int, since, before string) error {
	if days > 0 && (since != "" || before != "") {
		return memerr.New(memerr.CodeInvalidArgument, "--days conflicts with --since/--before")
	}
	return nil
}
