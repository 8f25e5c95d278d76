package utils

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/julianstephens/beaver/internal/constants"
)

// Date is a calendar day with no time-of-day or zone. The zero value is
// "no date". Two Dates for the same day compare equal with ==, so Date is
// safe to use as a map key.
type Date struct {
	t time.Time
}

// NewDate returns the Date for the given year, month and day. Out of range
// values are normalized the same way time.Date normalizes them.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a date string in the standard format (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(constants.DateFormat, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// ParseDateFormat parses value according to a strftime format such as
// "%d-%m-%Y". An empty format falls back to the API default.
func ParseDateFormat(value, format string) (Date, error) {
	format = strings.TrimSpace(format)
	if format == "" {
		format = constants.APIDateFormat
	}
	t, err := strftime.Parse(format, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("date %q does not match format %q: %w", value, format, err)
	}
	return DateOf(t), nil
}

// Format renders the date with a strftime format. An empty format falls
// back to the API default.
func (d Date) Format(format string) string {
	format = strings.TrimSpace(format)
	if format == "" {
		format = constants.APIDateFormat
	}
	return strftime.Format(format, d.t)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(constants.DateFormat)
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return d.t }

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Year() int { return d.t.Year() }

func (d Date) Month() time.Month { return d.t.Month() }

func (d Date) Day() int { return d.t.Day() }

func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

func (d Date) AddDays(n int) Date {
	return NewDate(d.t.Year(), d.t.Month(), d.t.Day()+n)
}

// AddMonths moves the date by n months, clamping the day to the last day
// of the target month (Jan 31 + 1 month = Feb 28/29).
func (d Date) AddMonths(n int) Date {
	y, m, day := d.t.Date()
	first := NewDate(y, m+time.Month(n), 1)
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return NewDate(first.Year(), first.Month(), day)
}

// AddYears moves the date by n years; Feb 29 clamps to Feb 28.
func (d Date) AddYears(n int) Date {
	return d.AddMonths(12 * n)
}

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) After(o Date) bool { return d.t.After(o.t) }

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int { return d.t.Compare(o.t) }

// Between reports whether start <= d <= end.
func (d Date) Between(start, end Date) bool {
	return !d.Before(start) && !d.After(end)
}

// DaysUntil returns the number of days from d to o (negative if o is earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.t.Sub(d.t).Hours() / 24)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	*d = parsed
	return nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Today returns the current calendar day in the given location. It is the
// only place the process clock is read for dates; the core takes today as
// a parameter.
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return DateOf(time.Now().In(loc))
}

// LoadLocation loads a timezone location from an IANA timezone name.
// If the timezone is "Local" or empty, it returns the system's local timezone.
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}

// DaysRange returns every day from start to end inclusive.
func DaysRange(start, end Date) []Date {
	if end.Before(start) {
		return nil
	}
	days := make([]Date, 0, start.DaysUntil(end)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}
