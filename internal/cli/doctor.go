package cli

import (
	"strings"

	"github.com/memnexus/memnex/internal/health"
	. "github.com/memnexus/memnex/internal/logging"
)

// DoctorCmd runs memnex's diagnostics, §6. Unlike every other verb,
// doctor never fails outright (exit 0 either way) — issues are reported
// as fields of the Report, not a returned error. A failed --fix is
// logged as a warning and the report is still printed.
type DoctorCmd struct {
	Fix bool `help:"Create any missing memnex-owned directories and write or repair config.json."`
}

func (c *DoctorCmd) Run(ctx *Context) error {
	if c.Fix {
		if err := health.Fix(); err != nil {
			L_warn("doctor: --fix failed", "error", err)
		}
	}

	report := health.Check()

	return ctx.Formatter.Emit(report, func(f *Formatter) string {
		var b strings.Builder
		b.WriteString("database: ")
		if !report.Database.Exists {
			b.WriteString("not yet created")
		} else {
			b.WriteString(report.Database.Integrity)
			b.WriteString(" (")
			b.WriteString(formatBytes(report.Database.SizeBytes))
			b.WriteString(")")
		}
		b.WriteString("\npermissions: config=")
		b.WriteString(boolStatus(report.Permissions.ConfigDir))
		b.WriteString(" logs=")
		b.WriteString(boolStatus(report.Permissions.LogsDir))
		b.WriteString(" source=")
		b.WriteString(boolStatus(report.Permissions.SourceDir))
		b.WriteString("\nhooks: ")
		if report.Hooks.Installed {
			b.WriteString("installed")
		} else {
			b.WriteString("not installed")
		}
		b.WriteString("\nconfig: ")
		if report.Config.Valid {
			b.WriteString("valid")
		} else {
			b.WriteString("invalid: " + strings.Join(report.Config.Issues, "; "))
		}
		return b.String()
	})
}

func boolStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}
