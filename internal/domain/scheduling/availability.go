package scheduling

import (
	"time"
)

// Working calendar offered to patients.
const (
	WindowDays     = 14
	FirstStartHour = 9
	LastStartHour  = 17
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// IsOccupied reports whether a one-hour candidate at start collides with any
// existing slot. Booked and blocked slots count the same.
func IsOccupied(existing []Slot, start time.Time) bool {
	end := start.Add(SlotDuration)
	for _, sl := range existing {
		if Overlaps(start, end, sl.StartTime, sl.EndTime) {
			return true
		}
	}
	return false
}

// CandidateStarts lists every working-hour start in the booking window that
// follows now, in now's location: weekdays from tomorrow through day
// WindowDays, on the hour from FirstStartHour to LastStartHour.
func CandidateStarts(now time.Time) []time.Time {
	loc := now.Location()
	y, m, d := now.Date()

	out := make([]time.Time, 0, WindowDays*(LastStartHour-FirstStartHour+1))
	for i := 1; i <= WindowDays; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for h := FirstStartHour; h <= LastStartHour; h++ {
			out = append(out, time.Date(y, m, d+i, h, 0, 0, 0, loc))
		}
	}
	return out
}

// AvailableStarts returns the candidate starts not occupied by existing, in
// chronological order. Days are computed in now's location, so callers pass
// now already converted to the clinic's time zone.
func AvailableStarts(existing []Slot, now time.Time) []time.Time {
	candidates := CandidateStarts(now)
	free := candidates[:0]
	for _, s := range candidates {
		if !IsOccupied(existing, s) {
			free = append(free, s)
		}
	}
	return free
}

// GroupByDay buckets ordered starts by their calendar date in loc.
func GroupByDay(starts []time.Time, loc *time.Location) []DayAvailability {
	var out []DayAvailability
	for _, s := range starts {
		date := s.In(loc).Format(time.DateOnly)
		if n := len(out); n > 0 && out[n-1].Date == date {
			out[n-1].Starts = append(out[n-1].Starts, s)
			continue
		}
		out = append(out, DayAvailability{Date: date, Starts: []time.Time{s}})
	}
	return out
}

// Window returns the half-open range [from, to) that can hold a candidate,
// for fetching only the slots that matter.
func Window(now time.Time) (from, to time.Time) {
	loc := now.Location()
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc), time.Date(y, m, d+WindowDays+1, 0, 0, 0, 0, loc)
}

// OnTheHour reports whether t falls exactly on a whole hour in loc.
func OnTheHour(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	return local.Minute() == 0 && local.Second() == 0 && local.Nanosecond() == 0
}
