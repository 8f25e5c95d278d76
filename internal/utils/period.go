package utils

import (
	"time"

	"github.com/julianstephens/beaver/internal/constants"
)

// PeriodStart returns the first day of the unit containing day. Weeks start
// on firstDay; months on the 1st; years on Jan 1. Day periods start on the
// day itself.
func PeriodStart(day Date, pt constants.PeriodType, firstDay time.Weekday) Date {
	switch pt {
	case constants.PeriodWeek:
		offset := (int(day.Weekday()) - int(firstDay) + 7) % 7
		return day.AddDays(-offset)
	case constants.PeriodMonth:
		return NewDate(day.Year(), day.Month(), 1)
	case constants.PeriodYear:
		return NewDate(day.Year(), time.January, 1)
	default:
		return day
	}
}

// DateMove advances day by n units of pt (n may be negative).
func DateMove(day Date, n int, pt constants.PeriodType) Date {
	switch pt {
	case constants.PeriodWeek:
		return day.AddDays(7 * n)
	case constants.PeriodMonth:
		return day.AddMonths(n)
	case constants.PeriodYear:
		return day.AddYears(n)
	default:
		return day.AddDays(n)
	}
}

// WeekDays returns the seven days of the week containing today.
func WeekDays(today Date, firstDay time.Weekday) []Date {
	start := PeriodStart(today, constants.PeriodWeek, firstDay)
	return DaysRange(start, start.AddDays(6))
}
