// Package schedule decides whether a guest may use a valid credential right
// now, based on weekly recurring and one-time date-range access windows.
package schedule

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTime    = errors.New("invalid time of day")
	ErrInvalidDay     = errors.New("day_of_week must be between 0 (Monday) and 6 (Sunday)")
	ErrInvertedWindow = errors.New("window start is after its end")
)

// TimeOfDay is seconds since local midnight.
type TimeOfDay int

const secondsPerDay = 24 * 60 * 60

func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return 0, fmt.Errorf("%w: %02d:%02d:%02d", ErrInvalidTime, hour, minute, second)
	}
	return TimeOfDay(hour*3600 + minute*60 + second), nil
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
}

// TimeOfDayOf truncates t to whole seconds.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(t)/3600, int(t)%3600/60, int(t)%60)
}

// Date is a calendar day without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate accepts "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Weekday numbers days from 0 (Monday) to 6 (Sunday).
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// RecurringWindow grants access every week on DayOfWeek between Start and
// End, both inclusive.
type RecurringWindow struct {
	UserID    int64
	DayOfWeek Weekday
	Start     TimeOfDay
	End       TimeOfDay
}

func NewRecurringWindow(userID int64, day Weekday, start, end TimeOfDay) (RecurringWindow, error) {
	if day < 0 || day > 6 {
		return RecurringWindow{}, ErrInvalidDay
	}
	if start > end {
		return RecurringWindow{}, fmt.Errorf("%w: %s > %s", ErrInvertedWindow, start, end)
	}
	return RecurringWindow{UserID: userID, DayOfWeek: day, Start: start, End: end}, nil
}

func (w RecurringWindow) Contains(now time.Time) bool {
	tod := TimeOfDayOf(now)
	return WeekdayOf(now) == w.DayOfWeek && w.Start <= tod && tod <= w.End
}

// OneTimeWindow grants access between Start and End on every day from
// StartDate through EndDate.
type OneTimeWindow struct {
	UserID    int64
	StartDate Date
	EndDate   Date
	Start     TimeOfDay
	End       TimeOfDay
}

func NewOneTimeWindow(userID int64, startDate, endDate Date, start, end TimeOfDay) (OneTimeWindow, error) {
	if startDate.Compare(endDate) > 0 {
		return OneTimeWindow{}, fmt.Errorf("%w: %s > %s", ErrInvertedWindow, startDate, endDate)
	}
	if start > end {
		return OneTimeWindow{}, fmt.Errorf("%w: %s > %s", ErrInvertedWindow, start, end)
	}
	return OneTimeWindow{UserID: userID, StartDate: startDate, EndDate: endDate, Start: start, End: end}, nil
}

func (w OneTimeWindow) Contains(now time.Time) bool {
	today := DateOf(now)
	tod := TimeOfDayOf(now)
	return w.StartDate.Compare(today) <= 0 && today.Compare(w.EndDate) <= 0 &&
		w.Start <= tod && tod <= w.End
}

// Allowed is the guest policy: no windows at all means unrestricted,
// otherwise now must fall inside at least one window.
func Allowed(now time.Time, recurring []RecurringWindow, oneTime []OneTimeWindow) bool {
	if len(recurring) == 0 && len(oneTime) == 0 {
		return true
	}
	for _, w := range recurring {
		if w.Contains(now) {
			return true
		}
	}
	for _, w := range oneTime {
		if w.Contains(now) {
			return true
		}
	}
	return false
}
