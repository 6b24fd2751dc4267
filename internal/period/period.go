// Package period turns report period tokens into inclusive calendar date
// ranges.
package period

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"kedaipos/backend/internal/domain"
)

const (
	Today     = "today"
	Yesterday = "yesterday"
	Week      = "week"
	LastWeek  = "last-week"
	TwoWeeks  = "2-weeks"
	Month     = "month"
	LastMonth = "last-month"
	Custom    = "custom"
)

var ErrInvalidDate = errors.New("invalid date")

type Range struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// Bounds returns the first and last instant of the range in loc.
func (r Range) Bounds(loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	start, err := time.ParseInLocation(domain.DateLayout, r.StartDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, r.StartDate)
	}
	end, err := time.ParseInLocation(domain.DateLayout, r.EndDate, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, r.EndDate)
	}
	return start, EndOfDay(end), nil
}

// Days counts the calendar days covered by the range, inclusive.
func (r Range) Days() int {
	start, err1 := time.Parse(domain.DateLayout, r.StartDate)
	end, err2 := time.Parse(domain.DateLayout, r.EndDate)
	if err1 != nil || err2 != nil || end.Before(start) {
		return 1
	}
	return int(end.Sub(start).Hours()/24) + 1
}

type CustomDates struct {
	Start string
	End   string
}

// Resolve maps a period token to a date range relative to now. Unknown
// tokens resolve to today. Custom ranges need a start date; the end date
// defaults to the start.
func Resolve(token string, now time.Time, custom CustomDates) (Range, error) {
	today := startOfDay(now)

	switch strings.ToLower(strings.TrimSpace(token)) {
	case Yesterday:
		d := today.AddDate(0, 0, -1)
		return dayRange(d, d), nil
	case Week:
		return dayRange(mondayOf(today), today), nil
	case LastWeek:
		monday := mondayOf(today).AddDate(0, 0, -7)
		return dayRange(monday, monday.AddDate(0, 0, 6)), nil
	case TwoWeeks:
		return dayRange(today.AddDate(0, 0, -14), today), nil
	case Month:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return dayRange(first, today), nil
	case LastMonth:
		firstThis := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		firstPrev := firstThis.AddDate(0, -1, 0)
		return dayRange(firstPrev, firstThis.AddDate(0, 0, -1)), nil
	case Custom:
		return resolveCustom(custom)
	default:
		return dayRange(today, today), nil
	}
}

func resolveCustom(custom CustomDates) (Range, error) {
	startRaw := strings.TrimSpace(custom.Start)
	endRaw := strings.TrimSpace(custom.End)
	if endRaw == "" {
		endRaw = startRaw
	}
	start, err := time.Parse(domain.DateLayout, startRaw)
	if err != nil {
		return Range{}, fmt.Errorf("%w: start %q", ErrInvalidDate, startRaw)
	}
	end, err := time.Parse(domain.DateLayout, endRaw)
	if err != nil {
		return Range{}, fmt.Errorf("%w: end %q", ErrInvalidDate, endRaw)
	}
	if end.Before(start) {
		return Range{}, fmt.Errorf("%w: end %s precedes start %s", ErrInvalidDate, endRaw, startRaw)
	}
	return dayRange(start, end), nil
}

func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// mondayOf returns the Monday of t's ISO week; Sunday belongs to the week
// that started six days earlier.
func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

func dayRange(start time.Time, end time.Time) Range {
	return Range{StartDate: start.Format(domain.DateLayout), EndDate: end.Format(domain.DateLayout)}
}
