package cycle

import (
	"testing"
	"time"

	"hemodialysis-scheduler/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParse(t *testing.T) {
	tests := []struct {
		descriptor string
		kind       Kind
		interval   int
		weekdays   []time.Weekday
	}{
		{"daily", KindInterval, 1, nil},
		{"Every Day", KindInterval, 1, nil},
		{"every 2 days", KindInterval, 2, nil},
		{"Every 3 Days", KindInterval, 3, nil},
		{"weekly", KindInterval, 7, nil},
		{"every week", KindInterval, 7, nil},
		{"alternate days", KindInterval, 2, nil},
		{"every other day", KindInterval, 2, nil},
		{"3 times per week", KindInterval, 2, nil},
		{"2/week", KindInterval, 3, nil},
		{"1 session per week", KindInterval, 7, nil},
		{"10 times per week", KindInterval, 1, nil},
		{"Mon/Wed/Fri", KindWeekdays, 0, []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		{"tue/thu/sat", KindWeekdays, 0, []time.Weekday{time.Tuesday, time.Thursday, time.Saturday}},
		{"Monday, Wednesday, Friday", KindWeekdays, 0, []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
		{"MWF", KindWeekdays, 0, []time.Weekday{time.Monday, time.Wednesday, time.Friday}},
	}

	for _, tt := range tests {
		t.Run(tt.descriptor, func(t *testing.T) {
			p, err := Parse(tt.descriptor)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.interval, p.Interval)
			if tt.weekdays != nil {
				assert.Equal(t, tt.weekdays, p.WeekdaySet())
			}
		})
	}
}

func TestParse_Unrecognized(t *testing.T) {
	for _, descriptor := range []string{"", "   ", "fortnightly", "every 0 days", "0 times per week", "every 2 weeks"} {
		t.Run(descriptor, func(t *testing.T) {
			_, err := Parse(descriptor)
			require.Error(t, err)
			assert.True(t, apperrors.IsInput(err))

			_, ok := NextDate(descriptor, date("2025-01-01"))
			assert.False(t, ok)
			assert.False(t, ShouldOccurOn(descriptor, date("2025-01-01"), date("2025-01-01")))
			assert.Empty(t, UpcomingDates(descriptor, date("2025-01-01"), 30))
		})
	}
}

func TestUpcomingDates_EveryTwoDays(t *testing.T) {
	got := UpcomingDates("every 2 days", date("2025-01-01"), 10)
	want := []time.Time{date("2025-01-03"), date("2025-01-05"), date("2025-01-07"), date("2025-01-09")}
	assert.Equal(t, want, got)
}

func TestUpcomingDates_WeekdaySet(t *testing.T) {
	// 2025-01-01 is a Wednesday
	got := UpcomingDates("Mon/Wed/Fri", date("2025-01-01"), 8)
	want := []time.Time{date("2025-01-03"), date("2025-01-06"), date("2025-01-08")}
	assert.Equal(t, want, got)
}

func TestUpcomingDates_Bounds(t *testing.T) {
	anchor := date("2025-03-10")
	for _, descriptor := range []string{"daily", "every 2 days", "every 5 days", "weekly", "alternate", "3 times per week", "Tue/Thu/Sat", "mon"} {
		for _, horizon := range []int{0, 1, 7, 30, 365} {
			dates := UpcomingDates(descriptor, anchor, horizon)
			assert.LessOrEqual(t, len(dates), MaxOccurrences, descriptor)
			end := anchor.AddDate(0, 0, horizon)
			for i, d := range dates {
				assert.True(t, d.After(anchor), "%s: %s not after anchor", descriptor, d)
				assert.True(t, d.Before(end), "%s: %s beyond horizon %d", descriptor, d, horizon)
				if i > 0 {
					assert.True(t, d.After(dates[i-1]), "%s: not increasing", descriptor)
				}
			}
		}
	}

	// daily over a year hits the safety cap
	assert.Len(t, UpcomingDates("daily", anchor, 365), MaxOccurrences)
}

func TestUpcoming_Restartable(t *testing.T) {
	p, err := Parse("every 3 days")
	require.NoError(t, err)

	seq := p.Upcoming(date("2025-01-01"), 12)
	var first, second []time.Time
	for d := range seq {
		first = append(first, d)
	}
	for d := range seq {
		second = append(second, d)
	}
	assert.Len(t, first, 3)
	assert.Equal(t, first, second)
}

func TestNextDate_WeekdayWalksForward(t *testing.T) {
	// Saturday anchor, Mon/Wed/Fri cycle -> Monday
	next, ok := NextDate("mon/wed/fri", date("2025-01-04"))
	require.True(t, ok)
	assert.Equal(t, date("2025-01-06"), next)

	// Anchor already on a matching weekday still moves forward
	next, ok = NextDate("mon/wed/fri", date("2025-01-06"))
	require.True(t, ok)
	assert.Equal(t, date("2025-01-08"), next)
}

func TestShouldOccurOn_AgreesWithDaysBetween(t *testing.T) {
	start := date("2025-02-27")
	for _, descriptor := range []string{"daily", "every 2 days", "every 4 days", "weekly", "alternate", "3 times per week"} {
		n, ok := DaysBetween(descriptor)
		require.True(t, ok, descriptor)

		for offset := -10; offset <= 60; offset++ {
			candidate := start.AddDate(0, 0, offset)
			want := offset >= 0 && offset%n == 0
			assert.Equal(t, want, ShouldOccurOn(descriptor, candidate, start), "%s offset %d", descriptor, offset)
		}

		// Every date emitted by the projection is an occurrence
		for _, d := range UpcomingDates(descriptor, start, 60) {
			assert.True(t, ShouldOccurOn(descriptor, d, start), "%s: %s", descriptor, d)
		}
	}
}

func TestShouldOccurOn_WeekdaySet(t *testing.T) {
	start := date("2025-01-01")
	assert.True(t, ShouldOccurOn("Tue/Thu/Sat", date("2025-01-02"), start))
	assert.False(t, ShouldOccurOn("Tue/Thu/Sat", date("2025-01-03"), start))

	_, ok := DaysBetween("Tue/Thu/Sat")
	assert.False(t, ok)
}

func TestPerWeekApproximationDrifts(t *testing.T) {
	// 3 per week is every 2 days, not Mon/Wed/Fri: four dates inside nine days
	got := UpcomingDates("3 times per week", date("2025-01-06"), 9)
	assert.Equal(t, []time.Time{date("2025-01-08"), date("2025-01-10"), date("2025-01-12"), date("2025-01-14")}, got)
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	d := Day(time.Date(2025, 5, 1, 23, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), d)
	assert.Equal(t, 3, DaysApart(date("2025-02-27"), date("2025-03-02")))
}
