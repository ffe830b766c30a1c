package domain

import "time"

// timeLayouts lists the timestamp formats accepted from sync payloads, most
// specific first. Planner-style exports mix RFC3339 with bare dates.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a timestamp in any accepted layout. It returns nil for an
// empty string or an unparseable value rather than failing the whole sync.
func ParseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// DaysBetween returns the signed whole-day span from a to b.
func DaysBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24
}
