// Package memstore keeps scheduler state in process memory. It backs the
// "memory" database driver and the service tests, and follows the same
// locking and compare-and-swap rules as the gorm repositories.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hemodialysis-scheduler/internal/apperrors"
	"hemodialysis-scheduler/internal/cycle"
	"hemodialysis-scheduler/internal/models"
	"hemodialysis-scheduler/internal/repository"
)

type Store struct {
	mu sync.Mutex

	nextSessionID uint
	nextSlotID    uint
	nextAlertID   uint
	nextOccID     uint

	sessions    map[uint]*models.Session
	slots       map[uint]*models.Slot
	occupancies []models.BedOccupancy
	claims      map[string]uint // live claim key -> session
	equipment   map[uint]models.PatientEquipment
	alerts      []models.EquipmentAlert
}

func New() *Store {
	return &Store{
		sessions:  make(map[uint]*models.Session),
		slots:     make(map[uint]*models.Slot),
		claims:    make(map[string]uint),
		equipment: make(map[uint]models.PatientEquipment),
	}
}

// Slots

func (s *Store) ListSlots(_ context.Context, activeOnly bool) ([]models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Slot, 0, len(s.slots))
	for _, sl := range s.slots {
		if activeOnly && !sl.IsActive {
			continue
		}
		out = append(out, *sl)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetSlot(_ context.Context, id uint) (*models.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[id]
	if !ok {
		return nil, fmt.Errorf("slot %d: %w", id, apperrors.ErrNotFound)
	}
	cp := *sl
	return &cp, nil
}

func (s *Store) CreateSlot(_ context.Context, slot *models.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSlotID++
	now := time.Now().UTC()
	slot.ID = s.nextSlotID
	slot.CreatedAt, slot.UpdatedAt = now, now
	cp := *slot
	s.slots[slot.ID] = &cp
	return nil
}

func (s *Store) UpdateSlot(_ context.Context, slot *models.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.slots[slot.ID]
	if !ok {
		return fmt.Errorf("slot %d: %w", slot.ID, apperrors.ErrNotFound)
	}
	cur.Name = slot.Name
	cur.StartTime = slot.StartTime
	cur.EndTime = slot.EndTime
	cur.BedCapacity = slot.BedCapacity
	cur.IsActive = slot.IsActive
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

// Sessions

func (s *Store) LoadOpenSessions(_ context.Context) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(x *models.Session) bool {
		return !x.State.Terminal() && !x.MovedToHistory
	}), nil
}

func (s *Store) LoadPendingEffects(_ context.Context) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(x *models.Session) bool {
		return x.NeedsBedRelease() || x.NeedsCounterAdvance()
	}), nil
}

func (s *Store) GetSession(_ context.Context, id uint) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
	}
	cp := *x
	return &cp, nil
}

func (s *Store) ListSessions(_ context.Context, f repository.SessionFilter) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.collect(func(x *models.Session) bool {
		if f.PatientID != nil && x.PatientID != *f.PatientID {
			return false
		}
		if f.SlotID != nil && (x.SlotID == nil || *x.SlotID != *f.SlotID) {
			return false
		}
		if f.From != nil && x.Date.Before(cycle.Day(*f.From)) {
			return false
		}
		if f.To != nil && x.Date.After(cycle.Day(*f.To)) {
			return false
		}
		return f.IncludeArchived || !x.MovedToHistory
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if slotOf(a) != slotOf(b) {
			return slotOf(a) < slotOf(b)
		}
		if bedOf(a) != bedOf(b) {
			return bedOf(a) < bedOf(b)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *Store) PatientSessionDates(_ context.Context, patientID uint, from, to time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, to = cycle.Day(from), cycle.Day(to)
	var dates []time.Time
	for _, x := range s.sessions {
		if x.PatientID == patientID && !x.Date.Before(from) && !x.Date.After(to) {
			dates = append(dates, x.Date)
		}
	}
	return dates, nil
}

func (s *Store) CreateSession(_ context.Context, sess *models.Session) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insert(sess)
	return sess.ID, nil
}

func (s *Store) CreateSessions(_ context.Context, sessions []models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range sessions {
		s.insert(&sessions[i])
	}
	return nil
}

func (s *Store) TransitionState(_ context.Context, id uint, from models.SessionState, change models.StateChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.sessions[id]
	if !ok || x.State != from {
		return false, nil
	}
	change.Apply(x)
	x.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) UpdateDetails(_ context.Context, id uint, upd models.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
	}
	if upd.PrescribedDurationHours != nil {
		h := *upd.PrescribedDurationHours
		x.PrescribedDurationHours = &h
	}
	if upd.Notes != nil {
		x.Notes = *upd.Notes
	}
	return nil
}

func (s *Store) ClaimBed(_ context.Context, claim repository.BedClaim) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimBed(claim)
}

// BookAndClaim inserts sess and claims its bed under one lock; a failed claim
// drops the insert
func (s *Store) BookAndClaim(_ context.Context, sess *models.Session, claim repository.BedClaim) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.State = models.StatePreScheduled
	s.insert(sess)
	claim.SessionID = sess.ID
	out, err := s.claimBed(claim)
	if err != nil {
		delete(s.sessions, sess.ID)
		sess.ID = 0
		return nil, err
	}
	return out, nil
}

func (s *Store) claimBed(claim repository.BedClaim) (*models.Session, error) {
	x, slot, snap, err := s.lockForBedChange(claim.SessionID)
	if err != nil {
		return nil, err
	}
	if x.State != models.StatePreScheduled {
		return nil, &apperrors.TransitionError{SessionID: x.ID, From: string(x.State), Event: "activate"}
	}
	bed, err := claim.Choose(*x, *slot, snap)
	if err != nil {
		return nil, err
	}
	if err := s.claim(slot.ID, bed, x, claim.StartedAt); err != nil {
		return nil, err
	}
	models.StateChange{
		To:                      models.StateActive,
		BedNumber:               &bed,
		TreatmentStartedAt:      &claim.StartedAt,
		PrescribedDurationHours: claim.PrescribedDurationHours,
	}.Apply(x)
	cp := *x
	return &cp, nil
}

func (s *Store) MoveBed(_ context.Context, id uint, at time.Time, choose repository.BedChooser) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, slot, snap, err := s.lockForBedChange(id)
	if err != nil {
		return nil, err
	}
	if !x.State.HoldsBed() {
		return nil, &apperrors.TransitionError{SessionID: x.ID, From: string(x.State), Event: "reassign bed"}
	}
	bed, err := choose(*x, *slot, snap)
	if err != nil {
		return nil, err
	}
	if x.BedNumber == nil || *x.BedNumber != bed {
		if err := s.checkFree(slot.ID, bed, x); err != nil {
			return nil, err
		}
		s.release(x.ID, at)
		if err := s.claim(slot.ID, bed, x, at); err != nil {
			return nil, err
		}
		x.BedNumber = &bed
	}
	cp := *x
	return &cp, nil
}

func (s *Store) ReleaseBed(_ context.Context, sessionID uint, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.sessions[sessionID]
	if !ok || x.BedReleasedAt != nil {
		return false, nil
	}
	x.BedReleasedAt = &at
	s.release(sessionID, at)
	return true, nil
}

// Occupancies returns the bed claim history, live and released
func (s *Store) Occupancies() []models.BedOccupancy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.BedOccupancy(nil), s.occupancies...)
}

// Equipment

func (s *Store) GetCounters(_ context.Context, patientID uint) (models.PatientEquipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if eq, ok := s.equipment[patientID]; ok {
		return eq, nil
	}
	return models.PatientEquipment{PatientID: patientID}, nil
}

// SetCounters seeds a patient's counters
func (s *Store) SetCounters(eq models.PatientEquipment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.equipment[eq.PatientID] = eq
}

func (s *Store) AdvanceForSession(_ context.Context, sessionID, patientID uint, at time.Time, update repository.CounterUpdate) (models.PatientEquipment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	x, ok := s.sessions[sessionID]
	if !ok || x.CountersAdvancedAt != nil {
		return models.PatientEquipment{}, false, nil
	}
	x.CountersAdvancedAt = &at

	cur, ok := s.equipment[patientID]
	if !ok {
		cur = models.PatientEquipment{PatientID: patientID}
	}
	next := update(cur)
	next.PatientID = patientID
	next.UpdatedAt = at
	s.equipment[patientID] = next
	return next, true, nil
}

func (s *Store) CreateAlerts(_ context.Context, alerts []models.EquipmentAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range alerts {
		s.nextAlertID++
		alerts[i].ID = s.nextAlertID
		if alerts[i].CreatedAt.IsZero() {
			alerts[i].CreatedAt = time.Now().UTC()
		}
		s.alerts = append(s.alerts, alerts[i])
	}
	return nil
}

func (s *Store) ListAlerts(_ context.Context, patientID uint, limit int) ([]models.EquipmentAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EquipmentAlert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if s.alerts[i].PatientID != patientID {
			continue
		}
		out = append(out, s.alerts[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// callers hold s.mu

func (s *Store) insert(sess *models.Session) {
	s.nextSessionID++
	now := time.Now().UTC()
	sess.ID = s.nextSessionID
	sess.Date = cycle.Day(sess.Date)
	if sess.State == "" {
		sess.State = models.StatePreScheduled
	}
	sess.CreatedAt, sess.UpdatedAt = now, now
	cp := *sess
	s.sessions[sess.ID] = &cp
}

func (s *Store) collect(keep func(*models.Session) bool) []models.Session {
	ids := make([]uint, 0, len(s.sessions))
	for id, x := range s.sessions {
		if keep(x) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]models.Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.sessions[id])
	}
	return out
}

func (s *Store) lockForBedChange(id uint) (*models.Session, *models.Slot, repository.BedSnapshot, error) {
	x, ok := s.sessions[id]
	if !ok {
		return nil, nil, repository.BedSnapshot{}, fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
	}
	if x.SlotID == nil {
		return nil, nil, repository.BedSnapshot{}, apperrors.Input("slot_id", "session %d has no slot assigned", x.ID)
	}
	slot, ok := s.slots[*x.SlotID]
	if !ok {
		return nil, nil, repository.BedSnapshot{}, fmt.Errorf("slot %d: %w", *x.SlotID, apperrors.ErrNotFound)
	}
	snap := repository.BedSnapshot{
		Live: s.collect(func(o *models.Session) bool {
			return o.SlotID != nil && *o.SlotID == slot.ID && o.Date.Equal(x.Date) &&
				o.State.HoldsBed() && !o.MovedToHistory && o.BedNumber != nil
		}),
		Claims: make(map[int]uint),
	}
	for _, o := range s.occupancies {
		if o.IsActive && o.SlotID == slot.ID && o.Date.Equal(x.Date) {
			snap.Claims[o.BedNumber] = o.SessionID
		}
	}
	return x, slot, snap, nil
}

func (s *Store) checkFree(slotID uint, bed int, x *models.Session) error {
	key := models.BedClaimKey(slotID, bed, x.Date)
	if holder, taken := s.claims[key]; taken && holder != x.ID {
		return &apperrors.ConflictError{SessionID: holder, Reason: fmt.Sprintf("bed %d already claimed", bed)}
	}
	return nil
}

func (s *Store) claim(slotID uint, bed int, x *models.Session, at time.Time) error {
	if err := s.checkFree(slotID, bed, x); err != nil {
		return err
	}
	key := models.BedClaimKey(slotID, bed, x.Date)
	s.claims[key] = x.ID
	s.nextOccID++
	s.occupancies = append(s.occupancies, models.BedOccupancy{
		ID:        s.nextOccID,
		SlotID:    slotID,
		BedNumber: bed,
		Date:      x.Date,
		SessionID: x.ID,
		IsActive:  true,
		ClaimKey:  &key,
		ClaimedAt: at,
	})
	return nil
}

func (s *Store) release(sessionID uint, at time.Time) {
	for i := range s.occupancies {
		o := &s.occupancies[i]
		if o.SessionID != sessionID || !o.IsActive {
			continue
		}
		if o.ClaimKey != nil {
			delete(s.claims, *o.ClaimKey)
		}
		o.IsActive = false
		o.ClaimKey = nil
		released := at
		o.ReleasedAt = &released
	}
}

func slotOf(x models.Session) uint {
	if x.SlotID == nil {
		return 0
	}
	return *x.SlotID
}

func bedOf(x models.Session) int {
	if x.BedNumber == nil {
		return 0
	}
	return *x.BedNumber
}
