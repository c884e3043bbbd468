package lifecycle

import (
	"testing"
	"time"

	"hemodialysis-scheduler/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionFor(t *testing.T) {
	tests := []struct {
		from models.SessionState
		ev   Event
		to   models.SessionState
		ok   bool
	}{
		{models.StatePreScheduled, EvActivate, models.StateActive, true},
		{models.StateActive, EvDurationElapsed, models.StateReadyForDischarge, true},
		{models.StateActive, EvAutoDischarge, models.StateDischarged, true},
		{models.StateReadyForDischarge, EvAutoDischarge, models.StateDischarged, true},
		{models.StatePreScheduled, EvMarkMissed, models.StateDischarged, true},
		{models.StatePreScheduled, EvForceDischarge, models.StateDischarged, true},
		{models.StateActive, EvForceDischarge, models.StateDischarged, true},
		{models.StateReadyForDischarge, EvForceDischarge, models.StateDischarged, true},

		{models.StateActive, EvActivate, "", false},
		{models.StateActive, EvMarkMissed, "", false},
		{models.StatePreScheduled, EvAutoDischarge, "", false},
		{models.StateReadyForDischarge, EvDurationElapsed, "", false},
		{models.StateDischarged, EvForceDischarge, "", false},
		{models.StateDischarged, EvAutoDischarge, "", false},
		{models.StateDischarged, EvMarkMissed, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			tr, ok := TransitionFor(tt.from, tt.ev)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.to, tr.To)
		})
	}
}

func TestTransitionEffects(t *testing.T) {
	missed, ok := TransitionFor(models.StatePreScheduled, EvMarkMissed)
	require.True(t, ok)
	assert.Equal(t, Effects{}, missed.Effects)
	assert.Equal(t, models.OutcomeMissed, missed.Outcome)

	auto, _ := TransitionFor(models.StateReadyForDischarge, EvAutoDischarge)
	assert.True(t, auto.Effects.ReleaseBed)
	assert.True(t, auto.Effects.AdvanceCounters)
	assert.True(t, auto.Effects.Archive)
	assert.Equal(t, models.OutcomeCompleted, auto.Outcome)
}

func TestDue_Scenario(t *testing.T) {
	start := time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC)
	hours := 4.0
	s := &models.Session{State: models.StateActive, TreatmentStartedAt: &start, PrescribedDurationHours: &hours}

	_, due := Due(s, start.Add(3*time.Hour+59*time.Minute), 0)
	assert.False(t, due)

	ev, due := Due(s, start.Add(4*time.Hour+5*time.Minute), 0)
	require.True(t, due)
	assert.Equal(t, EvDurationElapsed, ev)

	// ready sessions only wait for the ceiling
	s.State = models.StateReadyForDischarge
	_, due = Due(s, start.Add(4*time.Hour+30*time.Minute), 0)
	assert.False(t, due)

	ev, due = Due(s, start.Add(5*time.Hour+time.Minute), 0)
	require.True(t, due)
	assert.Equal(t, EvAutoDischarge, ev)

	// an active session that never became ready is discharged directly
	s.State = models.StateActive
	ev, _ = Due(s, start.Add(5*time.Hour+time.Minute), 0)
	assert.Equal(t, EvAutoDischarge, ev)
}

func TestDue_CeilingIndependentOfDuration(t *testing.T) {
	start := time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC)
	long := 6.0
	s := &models.Session{State: models.StateActive, TreatmentStartedAt: &start, PrescribedDurationHours: &long}

	ev, due := Due(s, start.Add(AutoDischargeWindow), 0)
	require.True(t, due)
	assert.Equal(t, EvAutoDischarge, ev)

	// configurable window
	_, due = Due(s, start.Add(5*time.Hour), 8*time.Hour)
	assert.False(t, due)
}

func TestDue_NotApplicable(t *testing.T) {
	start := time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC)
	later := start.Add(24 * time.Hour)

	_, due := Due(&models.Session{State: models.StatePreScheduled}, later, 0)
	assert.False(t, due)
	_, due = Due(&models.Session{State: models.StateActive}, later, 0)
	assert.False(t, due, "no start time")
	_, due = Due(&models.Session{State: models.StateDischarged, TreatmentStartedAt: &start}, later, 0)
	assert.False(t, due)

	// no prescription: only the ceiling applies
	s := &models.Session{State: models.StateActive, TreatmentStartedAt: &start}
	_, due = Due(s, start.Add(4*time.Hour), 0)
	assert.False(t, due)
}

func TestChange(t *testing.T) {
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

	tr, _ := TransitionFor(models.StateActive, EvDurationElapsed)
	c := Change(tr, now)
	assert.Equal(t, models.StateReadyForDischarge, c.To)
	require.NotNil(t, c.ReadyAt)
	assert.Nil(t, c.DischargedAt)
	assert.False(t, c.MovedToHistory)

	tr, _ = TransitionFor(models.StateActive, EvAutoDischarge)
	c = Change(tr, now)
	require.NotNil(t, c.DischargedAt)
	assert.True(t, c.MovedToHistory)
	assert.Equal(t, map[string]interface{}{
		"state":            models.StateDischarged,
		"outcome":          models.OutcomeCompleted,
		"discharged_at":    now,
		"moved_to_history": true,
	}, c.Columns())
}
