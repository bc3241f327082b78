package digest

import "time"

// AnchorDay is the weekday a digest window starts on.
const AnchorDay = time.Friday

// WindowDays is the length of a digest window.
const WindowDays = 8

// Window returns the digest range for now: midnight of the next AnchorDay in
// loc (today when today is the anchor day) through WindowDays later.
func Window(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	days := (int(AnchorDay) - int(local.Weekday()) + 7) % 7
	from := time.Date(local.Year(), local.Month(), local.Day()+days, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, WindowDays)
}
