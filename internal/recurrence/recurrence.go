// Package recurrence computes when a completed recurring task should run
// next. It is pure arithmetic on epoch milliseconds; persistence is the
// store's concern.
package recurrence

// Type enumerates the supported recurrence units.
type Type string

const (
	TypeNone    Type = "none"
	TypeSeconds Type = "seconds"
	TypeMinutes Type = "minutes"
	TypeHours   Type = "hours"
	TypeDays    Type = "days"
	TypeWeeks   Type = "weeks"
	TypeMonths  Type = "months"
)

func (t Type) Valid() bool {
	switch t {
	case TypeNone, TypeSeconds, TypeMinutes, TypeHours, TypeDays, TypeWeeks, TypeMonths:
		return true
	}
	return false
}

const (
	msSecond = int64(1000)
	msMinute = 60 * msSecond
	msHour   = 60 * msMinute
	msDay    = 24 * msHour
	msWeek   = 7 * msDay
	// Months are approximated as 30 days. Calendar-naive on purpose:
	// existing long-running series depend on this arithmetic.
	msMonth = 30 * msDay
)

// UnitMS returns the unit length in milliseconds, or 0 for none/unknown.
func UnitMS(t Type) int64 {
	switch t {
	case TypeSeconds:
		return msSecond
	case TypeMinutes:
		return msMinute
	case TypeHours:
		return msHour
	case TypeDays:
		return msDay
	case TypeWeeks:
		return msWeek
	case TypeMonths:
		return msMonth
	}
	return 0
}

// Series describes the recurrence state of one task.
type Series struct {
	Type     Type
	Interval int64 // positive multiplier; values < 1 are treated as 1
	// EndTime is an inclusive upper bound in epoch ms; nil means no bound.
	EndTime *int64
	DueTime int64 // the occurrence that just ran, epoch ms
}

// NextDue returns the due time of the next occurrence and whether the series
// continues. The series ends when the type is none, when nowMS has reached
// EndTime, or when the computed next occurrence would land on or past EndTime.
// The next due time only ever advances.
func NextDue(s Series, nowMS int64) (int64, bool) {
	if s.Type == TypeNone || !s.Type.Valid() {
		return 0, false
	}
	if s.EndTime != nil && nowMS >= *s.EndTime {
		return 0, false
	}

	interval := s.Interval
	if interval < 1 {
		interval = 1
	}
	next := s.DueTime + interval*UnitMS(s.Type)

	if s.EndTime != nil && next >= *s.EndTime {
		return 0, false
	}
	return next, true
}
