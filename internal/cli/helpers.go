package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

// formatCount pluralizes a simple count line ("3 files", "1 message").
func formatCount(noun string, n int) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// relativeTime renders t the way brief human output shows timestamps
// across every verb ("3 hours ago"), via the teacher's pack-wide
// go-humanize dependency rather than a hand-rolled duration formatter.
func relativeTime(t time.Time) string {
	return humanize.Time(t)
}

// formatBytes renders a byte count for doctor's database size field.
func formatBytes(n int64) string {
	return humanize.Bytes(uint64(n))
}

// trimFloat renders a score/weight with minimal decimal noise.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
