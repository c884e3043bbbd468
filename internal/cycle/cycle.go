package cycle

import (
	"iter"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"hemodialysis-scheduler/internal/apperrors"
)

// MaxOccurrences bounds how many dates a single projection may produce
const MaxOccurrences = 100

// Kind is the family a cycle descriptor belongs to
type Kind int

const (
	KindInterval Kind = iota + 1 // fixed number of days between sessions
	KindWeekdays                 // explicit set of weekdays
)

// Pattern is a parsed cycle descriptor
type Pattern struct {
	Descriptor string
	Kind       Kind
	// Interval is the days between sessions for KindInterval
	Interval int
	// PerWeek is set when the interval was approximated from "N times per week"
	PerWeek  int
	Weekdays [7]bool
}

var (
	intToken       = regexp.MustCompile(`\d+`)
	tokenSeparator = regexp.MustCompile(`[^a-z0-9]+`)
)

var weekdayTokens = map[string][]time.Weekday{
	"sunday": {time.Sunday}, "sun": {time.Sunday},
	"monday": {time.Monday}, "mon": {time.Monday},
	"tuesday": {time.Tuesday}, "tue": {time.Tuesday}, "tues": {time.Tuesday},
	"wednesday": {time.Wednesday}, "wed": {time.Wednesday},
	"thursday": {time.Thursday}, "thu": {time.Thursday}, "thur": {time.Thursday}, "thurs": {time.Thursday},
	"friday": {time.Friday}, "fri": {time.Friday},
	"saturday": {time.Saturday}, "sat": {time.Saturday},
	"mwf": {time.Monday, time.Wednesday, time.Friday},
	"tts": {time.Tuesday, time.Thursday, time.Saturday},
}

// Parse interprets a cycle descriptor. Matching is case-insensitive.
func Parse(descriptor string) (Pattern, error) {
	s := strings.ToLower(strings.TrimSpace(descriptor))
	p := Pattern{Descriptor: descriptor}
	if s == "" {
		return p, apperrors.Input("cycle", "descriptor is empty")
	}

	// Weekday sets win over everything else: "Mon/Wed/Fri", "tue thu sat"
	found := false
	for _, tok := range tokenSeparator.Split(s, -1) {
		for _, wd := range weekdayTokens[tok] {
			p.Weekdays[wd] = true
			found = true
		}
	}
	if found {
		p.Kind = KindWeekdays
		return p, nil
	}

	n, hasN := firstInt(s)
	hasWeek := strings.Contains(s, "week")

	switch {
	case hasWeek && hasN && !strings.Contains(s, "every"):
		// "3 times per week", "2/week": uniform approximation, floor(7/N)
		if n <= 0 {
			return p, apperrors.Input("cycle", "sessions per week must be positive in %q", descriptor)
		}
		p.Kind = KindInterval
		p.PerWeek = n
		p.Interval = max(7/n, 1)
	case strings.Contains(s, "alternate") || strings.Contains(s, "every other"):
		p.Kind = KindInterval
		p.Interval = 2
	case strings.Contains(s, "every") && hasN && strings.Contains(s, "day"):
		if n <= 0 {
			return p, apperrors.Input("cycle", "day interval must be positive in %q", descriptor)
		}
		p.Kind = KindInterval
		p.Interval = n
	case strings.Contains(s, "daily") || strings.Contains(s, "every day"):
		p.Kind = KindInterval
		p.Interval = 1
	case strings.Contains(s, "weekly") || strings.Contains(s, "every week"):
		p.Kind = KindInterval
		p.Interval = 7
	default:
		return p, apperrors.Input("cycle", "unrecognized descriptor %q", descriptor)
	}
	return p, nil
}

func firstInt(s string) (int, bool) {
	m := intToken.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Next returns the first session date strictly after anchor
func (p Pattern) Next(anchor time.Time) (time.Time, bool) {
	anchor = Day(anchor)
	switch p.Kind {
	case KindInterval:
		if p.Interval <= 0 {
			return time.Time{}, false
		}
		return anchor.AddDate(0, 0, p.Interval), true
	case KindWeekdays:
		for i := 1; i <= 7; i++ {
			d := anchor.AddDate(0, 0, i)
			if p.Weekdays[d.Weekday()] {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

// Upcoming yields successive session dates after anchor that fall before
// anchor+horizonDays, at most MaxOccurrences of them. Ranging over the
// returned sequence again restarts it from anchor.
func (p Pattern) Upcoming(anchor time.Time, horizonDays int) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if horizonDays <= 0 {
			return
		}
		cur := Day(anchor)
		end := cur.AddDate(0, 0, horizonDays)
		for i := 0; i < MaxOccurrences; i++ {
			next, ok := p.Next(cur)
			if !ok || !next.Before(end) {
				return
			}
			if !yield(next) {
				return
			}
			cur = next
		}
	}
}

// OccursOn reports whether candidate is a session date for a cycle that
// started on start
func (p Pattern) OccursOn(candidate, start time.Time) bool {
	switch p.Kind {
	case KindInterval:
		if p.Interval <= 0 {
			return false
		}
		diff := DaysApart(start, candidate)
		return diff >= 0 && diff%p.Interval == 0
	case KindWeekdays:
		return p.Weekdays[candidate.Weekday()]
	}
	return false
}

// WeekdaySet returns the matching weekdays in Sunday-first order
func (p Pattern) WeekdaySet() []time.Weekday {
	var out []time.Weekday
	for wd, ok := range p.Weekdays {
		if ok {
			out = append(out, time.Weekday(wd))
		}
	}
	return out
}

// NextDate is Parse followed by Next. An unparseable cycle is "no match".
func NextDate(descriptor string, anchor time.Time) (time.Time, bool) {
	p, err := Parse(descriptor)
	if err != nil {
		return time.Time{}, false
	}
	return p.Next(anchor)
}

// UpcomingDates collects the projection of descriptor from anchor
func UpcomingDates(descriptor string, anchor time.Time, horizonDays int) []time.Time {
	p, err := Parse(descriptor)
	if err != nil {
		return nil
	}
	return slices.Collect(p.Upcoming(anchor, horizonDays))
}

// ShouldOccurOn is Parse followed by OccursOn
func ShouldOccurOn(descriptor string, candidate, start time.Time) bool {
	p, err := Parse(descriptor)
	if err != nil {
		return false
	}
	return p.OccursOn(candidate, start)
}

// DaysBetween returns the fixed interval of a day-count cycle. Weekday sets
// and unparseable descriptors have none.
func DaysBetween(descriptor string) (int, bool) {
	p, err := Parse(descriptor)
	if err != nil || p.Kind != KindInterval {
		return 0, false
	}
	return p.Interval, true
}

// Day truncates t to its calendar date at UTC midnight
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysApart returns the whole calendar days from a to b
func DaysApart(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
