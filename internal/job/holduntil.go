package job

import "time"

// Shift windows for named job-hold-until values, per spec.md §4.3. Times
// are local wall-clock hours; "evening", "second-shift" and "night" wrap
// past midnight.
var shiftWindows = map[string][2]int{
	"day-time":     {6, 18},
	"evening":      {18, 0}, // 0 means midnight (end of day)
	"second-shift": {16, 0},
	"night":        {22, 6},
	"third-shift":  {0, 8},
	"weekend":      {0, 0}, // handled specially below
}

// ResolveHoldUntil computes the absolute release time for a named
// job-hold-until value, relative to now, per spec.md §4.3: "the target
// time is the next occurrence of the shift boundary, or now if already
// within the shift window."
func ResolveHoldUntil(name string, now time.Time) (time.Time, error) {
	switch name {
	case "", "no-hold":
		return time.Time{}, nil
	case "indefinite":
		return time.Time{}, nil
	case "weekend":
		return nextWeekend(now), nil
	}

	win, ok := shiftWindows[name]
	if !ok {
		return time.Time{}, errUnknownShift(name)
	}
	start, end := win[0], win[1]
	return nextShiftStart(now, start, end), nil
}

func nextShiftStart(now time.Time, startHour, endHour int) time.Time {
	y, m, d := now.Date()
	loc := now.Location()
	start := time.Date(y, m, d, startHour, 0, 0, 0, loc)

	inWindow := false
	if startHour < endHour {
		inWindow = !now.Before(start) && now.Hour() < endHour
	} else {
		// Wraps past midnight: in-window if hour >= start or hour < end.
		inWindow = now.Hour() >= startHour || now.Hour() < endHour
	}
	if inWindow {
		return now
	}
	if now.After(start) {
		start = start.AddDate(0, 0, 1)
	}
	return start
}

func nextWeekend(now time.Time) time.Time {
	wd := now.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return now
	}
	daysUntil := (int(time.Saturday) - int(wd) + 7) % 7
	if daysUntil == 0 {
		daysUntil = 7
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, daysUntil)
}

type errUnknownShift string

func (e errUnknownShift) Error() string { return "job: unknown hold-until value " + string(e) }
