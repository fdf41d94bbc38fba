package tradelog

import (
	"regexp"
	"time"
)

// DateFormat is the ISO layout used for journal keys.
const DateFormat = "2006-01-02"

var reISODate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseDate validates a YYYY-MM-DD string.
func ParseDate(value string) (time.Time, error) {
	if !reISODate.MatchString(value) {
		return time.Time{}, NewError(ErrCodeInvalidInput, "date must be YYYY-MM-DD: "+value)
	}
	t, err := time.Parse(DateFormat, value)
	if err != nil {
		return time.Time{}, WrapError(ErrCodeInvalidInput, "invalid date "+value, err)
	}
	return t, nil
}

// IsValidDate reports whether value is a well-formed calendar date.
func IsValidDate(value string) bool {
	_, err := ParseDate(value)
	return err == nil
}

// FormatDate formats t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// TodayIn returns the current date in loc.
func TodayIn(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format(DateFormat)
}

// WeekBounds returns the Monday and Sunday of the week containing t.
func WeekBounds(t time.Time) (time.Time, time.Time) {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	monday := t.AddDate(0, 0, 1-weekday)
	return monday, monday.AddDate(0, 0, 6)
}

// MonthBounds returns the first and last day of the month containing t.
func MonthBounds(t time.Time) (time.Time, time.Time) {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first, first.AddDate(0, 1, -1)
}

// DateRange lists every date from start to end inclusive.
func DateRange(start, end time.Time) []string {
	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, FormatDate(d))
	}
	return out
}
