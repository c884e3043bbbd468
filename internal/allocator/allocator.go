package allocator

import (
	"fmt"
	"sort"
	"time"

	"hemodialysis-scheduler/internal/apperrors"
	"hemodialysis-scheduler/internal/cycle"
	"hemodialysis-scheduler/internal/models"
)

// ConflictKind classifies a BedConflict
type ConflictKind string

const (
	DoubleBooking ConflictKind = "DOUBLE_BOOKING"
	MissingBed    ConflictKind = "MISSING_BED"
)

// BedConflict is a diagnostic finding; nothing is corrected automatically
type BedConflict struct {
	Kind          ConflictKind `json:"kind"`
	SessionID     uint         `json:"session_id"`
	PatientID     uint         `json:"patient_id"`
	SlotID        uint         `json:"slot_id"`
	BedNumber     *int         `json:"bed_number,omitempty"`
	Date          time.Time    `json:"session_date"`
	CompetingWith []uint       `json:"competing_with,omitempty"`
}

// Proposal is a bed assignment to check
type Proposal struct {
	SlotID    uint
	BedNumber int
	Date      time.Time
	Capacity  int
}

// Validation is the outcome of ValidateAssignment
type Validation struct {
	Valid                bool
	Reason               string
	ConflictingSessionID *uint
}

// Err converts a failed validation into the matching typed error
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	if v.ConflictingSessionID != nil {
		return &apperrors.ConflictError{SessionID: *v.ConflictingSessionID, Reason: v.Reason}
	}
	return apperrors.Input("bed_number", "%s", v.Reason)
}

// AllocationOrder lists bed numbers odd-first (1, 3, 5, …, 2, 4, …) so that
// neighbouring beds stay empty under light occupancy
func AllocationOrder(capacity int) []int {
	order := make([]int, 0, max(capacity, 0))
	for bed := 1; bed <= capacity; bed += 2 {
		order = append(order, bed)
	}
	for bed := 2; bed <= capacity; bed += 2 {
		order = append(order, bed)
	}
	return order
}

// NextAvailableBed returns the first bed in allocation order that is not occupied
func NextAvailableBed(occupied []int, capacity int) (int, bool) {
	taken := make(map[int]bool, len(occupied))
	for _, bed := range occupied {
		taken[bed] = true
	}
	for _, bed := range AllocationOrder(capacity) {
		if !taken[bed] {
			return bed, true
		}
	}
	return 0, false
}

// FreeBeds lists unoccupied beds in allocation order
func FreeBeds(occupied []int, capacity int) []int {
	taken := make(map[int]bool, len(occupied))
	for _, bed := range occupied {
		taken[bed] = true
	}
	free := []int{}
	for _, bed := range AllocationOrder(capacity) {
		if !taken[bed] {
			free = append(free, bed)
		}
	}
	return free
}

// OccupiedBeds extracts the beds held on slotID/date from a session snapshot
func OccupiedBeds(sessions []models.Session, slotID uint, date time.Time) []int {
	var beds []int
	for i := range sessions {
		s := &sessions[i]
		if holdsBed(s, slotID, date) {
			beds = append(beds, *s.BedNumber)
		}
	}
	sort.Ints(beds)
	return beds
}

// ValidateAssignment checks a proposed (slot, bed, date) against the snapshot.
// excludeSessionID is the session being edited; its own claim never conflicts.
// The check is pure: callers serialize concurrent claims on the same slot and date.
func ValidateAssignment(p Proposal, excludeSessionID uint, sessions []models.Session) Validation {
	if p.BedNumber < 1 || p.BedNumber > p.Capacity {
		return Validation{Reason: fmt.Sprintf("bed %d outside 1..%d", p.BedNumber, p.Capacity)}
	}
	for i := range sessions {
		s := &sessions[i]
		if s.ID == excludeSessionID || !holdsBed(s, p.SlotID, p.Date) || *s.BedNumber != p.BedNumber {
			continue
		}
		id := s.ID
		return Validation{
			Reason:               fmt.Sprintf("bed %d already occupied on %s", p.BedNumber, cycle.Day(p.Date).Format("2006-01-02")),
			ConflictingSessionID: &id,
		}
	}
	return Validation{Valid: true}
}

// holdsBed reports a live claim on slotID/date: a bed is set and the session
// is neither discharged nor archived
func holdsBed(s *models.Session, slotID uint, date time.Time) bool {
	return s.SlotID != nil && *s.SlotID == slotID &&
		s.BedNumber != nil &&
		!s.State.Terminal() && !s.Archived() &&
		cycle.Day(s.Date).Equal(cycle.Day(date))
}

type bedKey struct {
	date string
	slot uint
	bed  int
}

// ScanConflicts reports double bookings and active sessions without a bed
// for non-archived sessions dated within [from, to]
func ScanConflicts(sessions []models.Session, from, to time.Time) ([]BedConflict, error) {
	from, to = cycle.Day(from), cycle.Day(to)
	if to.Before(from) {
		return nil, apperrors.Input("date range", "%s is before %s", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	groups := make(map[bedKey][]*models.Session)
	var conflicts []BedConflict

	for i := range sessions {
		s := &sessions[i]
		d := cycle.Day(s.Date)
		if s.Archived() || d.Before(from) || d.After(to) || s.SlotID == nil {
			continue
		}
		if s.BedNumber == nil {
			if s.State.HoldsBed() {
				conflicts = append(conflicts, newConflict(MissingBed, s, nil))
			}
			continue
		}
		if s.State.Terminal() {
			continue
		}
		k := bedKey{date: d.Format("2006-01-02"), slot: *s.SlotID, bed: *s.BedNumber}
		groups[k] = append(groups[k], s)
	}

	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		for _, s := range members {
			var others []uint
			for _, o := range members {
				if o.ID != s.ID {
					others = append(others, o.ID)
				}
			}
			conflicts = append(conflicts, newConflict(DoubleBooking, s, others))
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.SlotID != b.SlotID {
			return a.SlotID < b.SlotID
		}
		if bedOf(a) != bedOf(b) {
			return bedOf(a) < bedOf(b)
		}
		return a.SessionID < b.SessionID
	})
	return conflicts, nil
}

func newConflict(kind ConflictKind, s *models.Session, others []uint) BedConflict {
	c := BedConflict{
		Kind:          kind,
		SessionID:     s.ID,
		PatientID:     s.PatientID,
		SlotID:        *s.SlotID,
		Date:          cycle.Day(s.Date),
		CompetingWith: others,
	}
	if s.BedNumber != nil {
		bed := *s.BedNumber
		c.BedNumber = &bed
	}
	return c
}

func bedOf(c BedConflict) int {
	if c.BedNumber == nil {
		return 0
	}
	return *c.BedNumber
}
