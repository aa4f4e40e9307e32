package calendar

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) span of absolute time.
// Intervals that only touch at a boundary do not overlap.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

func (i Interval) Empty() bool {
	return !i.Valid()
}

func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely within i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// SortIntervals orders intervals by start, then by end.
func SortIntervals(intervals []Interval) {
	sort.SliceStable(intervals, func(a, b int) bool {
		if intervals[a].Start.Equal(intervals[b].Start) {
			return intervals[a].End.Before(intervals[b].End)
		}
		return intervals[a].Start.Before(intervals[b].Start)
	})
}

// Subtract removes every busy interval from the windows. A busy interval strictly
// inside a window splits it, one crossing a boundary truncates it and one covering it
// removes it. Pieces are returned sorted and adjacent pieces are not merged.
func Subtract(windows, busy []Interval) []Interval {
	out := make([]Interval, 0, len(windows))
	for _, w := range windows {
		if w.Empty() {
			continue
		}
		pieces := []Interval{w}
		for _, b := range busy {
			if b.Empty() {
				continue
			}
			next := pieces[:0:0]
			for _, p := range pieces {
				if !p.Overlaps(b) {
					next = append(next, p)
					continue
				}
				if p.Start.Before(b.Start) {
					next = append(next, Interval{Start: p.Start, End: b.Start})
				}
				if b.End.Before(p.End) {
					next = append(next, Interval{Start: b.End, End: p.End})
				}
			}
			pieces = next
			if len(pieces) == 0 {
				break
			}
		}
		out = append(out, pieces...)
	}
	SortIntervals(out)
	return out
}

// Coalesce merges overlapping and touching intervals into their union.
func Coalesce(intervals []Interval) []Interval {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Valid() {
			sorted = append(sorted, iv)
		}
	}
	SortIntervals(sorted)

	out := make([]Interval, 0, len(sorted))
	for _, iv := range sorted {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Covers reports whether candidate lies inside the union of windows.
func Covers(windows []Interval, candidate Interval) bool {
	for _, w := range Coalesce(windows) {
		if w.Contains(candidate) {
			return true
		}
	}
	return false
}

// FilterMinDuration drops intervals shorter than min. A non-positive min keeps everything.
func FilterMinDuration(intervals []Interval, min time.Duration) []Interval {
	if min <= 0 {
		return intervals
	}
	out := intervals[:0:0]
	for _, iv := range intervals {
		if iv.Duration() >= min {
			out = append(out, iv)
		}
	}
	return out
}
