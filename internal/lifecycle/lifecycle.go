package lifecycle

import (
	"time"

	"hemodialysis-scheduler/internal/models"
)

// AutoDischargeWindow is the ceiling after treatment start at which a session
// is discharged regardless of its prescribed duration
const AutoDischargeWindow = 5 * time.Hour

// Event triggers a transition
type Event string

const (
	EvActivate        Event = "activate"
	EvDurationElapsed Event = "duration_elapsed"
	EvAutoDischarge   Event = "auto_discharge"
	EvMarkMissed      Event = "mark_missed"
	EvForceDischarge  Event = "force_discharge"
)

// Effects are the side effects a transition carries after the state commit
type Effects struct {
	ClaimBed        bool
	ReleaseBed      bool
	AdvanceCounters bool
	Archive         bool
}

// Transition is one allowed edge of the state machine
type Transition struct {
	From    models.SessionState
	To      models.SessionState
	Event   Event
	Outcome models.DischargeOutcome
	Effects Effects
}

var transitionsTable = []Transition{
	// Manual activation claims a bed
	{From: models.StatePreScheduled, To: models.StateActive, Event: EvActivate, Effects: Effects{ClaimBed: true}},

	// Time-driven
	{From: models.StateActive, To: models.StateReadyForDischarge, Event: EvDurationElapsed},
	{From: models.StateActive, To: models.StateDischarged, Event: EvAutoDischarge, Outcome: models.OutcomeCompleted,
		Effects: Effects{ReleaseBed: true, AdvanceCounters: true, Archive: true}},
	{From: models.StateReadyForDischarge, To: models.StateDischarged, Event: EvAutoDischarge, Outcome: models.OutcomeCompleted,
		Effects: Effects{ReleaseBed: true, AdvanceCounters: true, Archive: true}},

	// No-show: nothing was held
	{From: models.StatePreScheduled, To: models.StateDischarged, Event: EvMarkMissed, Outcome: models.OutcomeMissed},

	// Administrative discharge from any open state
	{From: models.StatePreScheduled, To: models.StateDischarged, Event: EvForceDischarge, Outcome: models.OutcomeForced,
		Effects: Effects{ReleaseBed: true, AdvanceCounters: true, Archive: true}},
	{From: models.StateActive, To: models.StateDischarged, Event: EvForceDischarge, Outcome: models.OutcomeForced,
		Effects: Effects{ReleaseBed: true, AdvanceCounters: true, Archive: true}},
	{From: models.StateReadyForDischarge, To: models.StateDischarged, Event: EvForceDischarge, Outcome: models.OutcomeForced,
		Effects: Effects{ReleaseBed: true, AdvanceCounters: true, Archive: true}},
}

// TransitionFor returns the allowed transition for a state and event
func TransitionFor(from models.SessionState, ev Event) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Due returns the time-driven event a session is ready for at now, if any.
// The auto-discharge ceiling wins over the prescribed duration.
func Due(s *models.Session, now time.Time, window time.Duration) (Event, bool) {
	if !s.State.HoldsBed() || s.TreatmentStartedAt == nil {
		return "", false
	}
	start := *s.TreatmentStartedAt
	if window <= 0 {
		window = AutoDischargeWindow
	}
	if !now.Before(start.Add(window)) {
		return EvAutoDischarge, true
	}
	if s.State == models.StateActive && s.PrescribedDurationHours != nil && *s.PrescribedDurationHours > 0 {
		prescribed := time.Duration(*s.PrescribedDurationHours * float64(time.Hour))
		if !now.Before(start.Add(prescribed)) {
			return EvDurationElapsed, true
		}
	}
	return "", false
}

// Change builds the column changes of tr applied at now
func Change(tr Transition, now time.Time) models.StateChange {
	c := models.StateChange{To: tr.To, Outcome: tr.Outcome}
	switch tr.To {
	case models.StateReadyForDischarge:
		c.ReadyAt = &now
	case models.StateDischarged:
		c.DischargedAt = &now
	}
	c.MovedToHistory = tr.Effects.Archive
	return c
}
