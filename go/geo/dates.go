package geo

import (
	"time"

	"github.com/eocube/eocube/go/skerr"
)

// TimeRange is a half-open time window [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Buckets splits [start, end] into consecutive windows of the given width,
// starting at start. The last window always covers end.
func Buckets(start, end time.Time, width time.Duration) ([]TimeRange, error) {
	if width <= 0 {
		return nil, skerr.Fmt("bucket width must be positive, got %s", width)
	}
	if end.Before(start) {
		return nil, skerr.Fmt("bucket range ends (%s) before it starts (%s)", end, start)
	}
	var out []TimeRange
	for t := start; !t.After(end); t = t.Add(width) {
		out = append(out, TimeRange{Start: t, End: t.Add(width)})
	}
	return out, nil
}
