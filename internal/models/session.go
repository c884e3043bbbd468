package models

import "time"

// SessionState is the lifecycle state of a treatment session
type SessionState string

const (
	StatePreScheduled      SessionState = "pre_scheduled"
	StateActive            SessionState = "active"
	StateReadyForDischarge SessionState = "ready_for_discharge"
	StateDischarged        SessionState = "discharged"
)

// OpenStates are the states the reconciliation loop looks at
var OpenStates = []SessionState{StatePreScheduled, StateActive, StateReadyForDischarge}

// Terminal reports whether no further transition can leave the state
func (s SessionState) Terminal() bool {
	return s == StateDischarged
}

// HoldsBed reports whether a session in this state occupies its bed
func (s SessionState) HoldsBed() bool {
	return s == StateActive || s == StateReadyForDischarge
}

// DischargeOutcome records how a session reached the discharged state
type DischargeOutcome string

const (
	OutcomeCompleted DischargeOutcome = "completed" // automatic discharge after treatment
	OutcomeMissed    DischargeOutcome = "missed"    // patient did not arrive
	OutcomeForced    DischargeOutcome = "forced"    // administrator discharge
)

// Session represents the sessions table
// One booked or treated dialysis session for a patient on a date
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PatientID uint      `gorm:"not null;index" json:"patient_id"`
	SlotID    *uint     `gorm:"index:idx_sessions_slot_date" json:"slot_id"`
	BedNumber *int      `json:"bed_number"`
	Date      time.Time `gorm:"column:session_date;type:date;not null;index:idx_sessions_slot_date" json:"session_date"`

	State   SessionState     `gorm:"size:32;not null;index;default:'pre_scheduled'" json:"state"`
	Outcome DischargeOutcome `gorm:"size:16" json:"outcome,omitempty"`
	Cycle   string           `gorm:"size:100" json:"cycle,omitempty"` // descriptor that generated the session
	Notes   string           `gorm:"type:text" json:"notes,omitempty"`

	TreatmentStartedAt      *time.Time `json:"treatment_started_at"`
	PrescribedDurationHours *float64   `json:"prescribed_duration_hours"`
	ReadyAt                 *time.Time `json:"ready_at"`
	DischargedAt            *time.Time `json:"discharged_at"`
	MovedToHistory          bool       `gorm:"default:false;index" json:"moved_to_history"`

	// Discharge side effects, null until applied
	BedReleasedAt      *time.Time `json:"bed_released_at"`
	CountersAdvancedAt *time.Time `json:"counters_advanced_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Session model
func (Session) TableName() string {
	return "sessions"
}

// Archived reports whether the session left the working set
func (s *Session) Archived() bool {
	return s.MovedToHistory
}

// NeedsBedRelease reports a discharged session whose bed claim is still open
func (s *Session) NeedsBedRelease() bool {
	return s.State == StateDischarged && s.BedNumber != nil && s.BedReleasedAt == nil
}

// NeedsCounterAdvance reports a discharged session whose equipment counters
// have not been advanced yet. Missed sessions never used equipment.
func (s *Session) NeedsCounterAdvance() bool {
	return s.State == StateDischarged && s.Outcome != OutcomeMissed && s.CountersAdvancedAt == nil
}

// StateChange is the set of columns a lifecycle transition writes
type StateChange struct {
	To                      SessionState
	Outcome                 DischargeOutcome
	BedNumber               *int
	TreatmentStartedAt      *time.Time
	PrescribedDurationHours *float64
	ReadyAt                 *time.Time
	DischargedAt            *time.Time
	MovedToHistory          bool
}

// Columns maps the change onto column names; unset optional fields are left alone
func (c StateChange) Columns() map[string]interface{} {
	cols := map[string]interface{}{"state": c.To}
	if c.Outcome != "" {
		cols["outcome"] = c.Outcome
	}
	if c.BedNumber != nil {
		cols["bed_number"] = *c.BedNumber
	}
	if c.TreatmentStartedAt != nil {
		cols["treatment_started_at"] = *c.TreatmentStartedAt
	}
	if c.PrescribedDurationHours != nil {
		cols["prescribed_duration_hours"] = *c.PrescribedDurationHours
	}
	if c.ReadyAt != nil {
		cols["ready_at"] = *c.ReadyAt
	}
	if c.DischargedAt != nil {
		cols["discharged_at"] = *c.DischargedAt
	}
	if c.MovedToHistory {
		cols["moved_to_history"] = true
	}
	return cols
}

// Apply copies the change onto an in-memory session
func (c StateChange) Apply(s *Session) {
	s.State = c.To
	if c.Outcome != "" {
		s.Outcome = c.Outcome
	}
	if c.BedNumber != nil {
		bed := *c.BedNumber
		s.BedNumber = &bed
	}
	if c.TreatmentStartedAt != nil {
		s.TreatmentStartedAt = c.TreatmentStartedAt
	}
	if c.PrescribedDurationHours != nil {
		s.PrescribedDurationHours = c.PrescribedDurationHours
	}
	if c.ReadyAt != nil {
		s.ReadyAt = c.ReadyAt
	}
	if c.DischargedAt != nil {
		s.DischargedAt = c.DischargedAt
	}
	if c.MovedToHistory {
		s.MovedToHistory = true
	}
}

// SessionUpdate is a partial edit of a session; nil fields are untouched
type SessionUpdate struct {
	BedNumber               *int     `json:"bed_number"`
	PrescribedDurationHours *float64 `json:"prescribed_duration_hours"`
	Notes                   *string  `json:"notes"`
}

// Empty reports whether the update carries no field
func (u SessionUpdate) Empty() bool {
	return u.BedNumber == nil && u.PrescribedDurationHours == nil && u.Notes == nil
}
