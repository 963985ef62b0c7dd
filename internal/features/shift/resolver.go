package shift

import (
	"sort"
	"time"
)

// Resolve returns the shift whose window contains the time of day of ts.
//
// shifts must already be the enabled set; they are examined in ascending
// start order and the first match wins. Same-day windows are [start, end),
// overnight windows match t >= start or t < end. When nothing matches the
// first shift is returned. nil only when shifts is empty. Shifts with
// unparseable times are skipped.
func Resolve(ts time.Time, shifts []Shift) *Shift {
	ordered := orderByStart(shifts)
	if len(ordered) == 0 {
		return nil
	}

	t := TimeOfDayOf(ts)
	for i := range ordered {
		if contains(ordered[i].start, ordered[i].end, t) {
			s := ordered[i].shift
			return &s
		}
	}

	fallback := ordered[0].shift
	return &fallback
}

func contains(start, end, t TimeOfDay) bool {
	if start <= end {
		return start <= t && t < end
	}
	return t >= start || t < end
}

type window struct {
	shift      Shift
	start, end TimeOfDay
}

func orderByStart(shifts []Shift) []window {
	out := make([]window, 0, len(shifts))
	for _, s := range shifts {
		start, end, err := s.Window()
		if err != nil {
			continue
		}
		out = append(out, window{shift: s, start: start, end: end})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}
