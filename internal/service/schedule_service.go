package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"hemodialysis-scheduler/internal/allocator"
	"hemodialysis-scheduler/internal/apperrors"
	"hemodialysis-scheduler/internal/cycle"
	"hemodialysis-scheduler/internal/models"
	"hemodialysis-scheduler/internal/repository"

	"go.uber.org/zap"
)

// MaxHorizonDays bounds how far ahead future sessions are generated
const MaxHorizonDays = 366

// BookingRequest books a single session; Activate starts it immediately (walk-in)
type BookingRequest struct {
	PatientID               uint
	SlotID                  uint
	Date                    time.Time
	Notes                   string
	Activate                bool
	BedNumber               *int // only with Activate; beds are never reserved ahead
	PrescribedDurationHours *float64
}

// ScheduleRequest generates a patient's future sessions from a cycle
type ScheduleRequest struct {
	PatientID   uint
	Cycle       string
	AnchorDate  time.Time
	SlotID      *uint
	HorizonDays int
}

// Occupancy is the bed grid of one slot on one date
type Occupancy struct {
	SlotID   uint      `json:"slot_id"`
	Date     time.Time `json:"session_date"`
	Capacity int       `json:"capacity"`
	Occupied []int     `json:"occupied"`
	Free     []int     `json:"free"`
	NextBed  *int      `json:"next_bed"`
}

// ScheduleService books sessions and answers read-side questions about the schedule
type ScheduleService struct {
	sessions  SessionStore
	slots     SlotReader
	lifecycle *LifecycleService
	logger    *zap.Logger
}

func NewScheduleService(sessions SessionStore, slots SlotReader, lifecycleService *LifecycleService, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{
		sessions:  sessions,
		slots:     slots,
		lifecycle: lifecycleService,
		logger:    logger,
	}
}

// GetSession retrieves a session by ID
func (s *ScheduleService) GetSession(ctx context.Context, id uint) (*models.Session, error) {
	return s.sessions.GetSession(ctx, id)
}

// ListSessions retrieves sessions matching the filter
func (s *ScheduleService) ListSessions(ctx context.Context, f repository.SessionFilter) ([]models.Session, error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, apperrors.Input("date range", "to is before from")
	}
	return s.sessions.ListSessions(ctx, f)
}

// BookSession creates a pre-scheduled session. With Activate the session is
// created and put on a bed in one step (walk-in).
func (s *ScheduleService) BookSession(ctx context.Context, req BookingRequest) (*models.Session, error) {
	if req.PatientID == 0 {
		return nil, apperrors.Input("patient_id", "is required")
	}
	if req.BedNumber != nil && !req.Activate {
		return nil, apperrors.Input("bed_number", "a bed is assigned on activation; set activate to choose one")
	}
	if err := validateDuration(req.PrescribedDurationHours); err != nil {
		return nil, err
	}
	if err := s.checkSlot(ctx, req.SlotID); err != nil {
		return nil, err
	}

	slotID := req.SlotID
	sess := &models.Session{
		PatientID: req.PatientID,
		SlotID:    &slotID,
		Date:      cycle.Day(req.Date),
		State:     models.StatePreScheduled,
		Notes:     strings.TrimSpace(req.Notes),
	}
	if req.Activate {
		return s.lifecycle.Admit(ctx, sess, ActivateRequest{
			BedNumber:               req.BedNumber,
			PrescribedDurationHours: req.PrescribedDurationHours,
		})
	}

	sess.PrescribedDurationHours = req.PrescribedDurationHours
	if _, err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("session booked",
		zap.Uint("session_id", sess.ID),
		zap.Uint("patient_id", sess.PatientID),
		zap.Uint("slot_id", slotID),
		zap.Time("session_date", sess.Date),
	)
	return sess, nil
}

// GenerateFutureSessions creates pre-scheduled sessions on every date the
// cycle yields within the horizon, skipping dates on which the patient
// already has a session. Running it twice creates nothing the second time.
func (s *ScheduleService) GenerateFutureSessions(ctx context.Context, req ScheduleRequest) ([]models.Session, error) {
	if req.PatientID == 0 {
		return nil, apperrors.Input("patient_id", "is required")
	}
	if req.HorizonDays < 1 || req.HorizonDays > MaxHorizonDays {
		return nil, apperrors.Input("horizon_days", "must be between 1 and %d", MaxHorizonDays)
	}
	pattern, err := cycle.Parse(req.Cycle)
	if err != nil {
		return nil, err
	}
	if req.SlotID != nil {
		if err := s.checkSlot(ctx, *req.SlotID); err != nil {
			return nil, err
		}
	}

	anchor := cycle.Day(req.AnchorDate)
	existing, err := s.sessions.PatientSessionDates(ctx, req.PatientID, anchor, anchor.AddDate(0, 0, req.HorizonDays))
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(existing))
	for _, d := range existing {
		taken[d.Format("2006-01-02")] = true
	}

	var created []models.Session
	skipped := 0
	for date := range pattern.Upcoming(anchor, req.HorizonDays) {
		if taken[date.Format("2006-01-02")] {
			skipped++
			continue
		}
		sess := models.Session{
			PatientID: req.PatientID,
			Date:      date,
			State:     models.StatePreScheduled,
			Cycle:     pattern.Descriptor,
		}
		if req.SlotID != nil {
			slotID := *req.SlotID
			sess.SlotID = &slotID
		}
		created = append(created, sess)
	}
	if err := s.sessions.CreateSessions(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to create sessions: %w", err)
	}

	s.logger.Info("future sessions generated",
		zap.Uint("patient_id", req.PatientID),
		zap.String("cycle", pattern.Descriptor),
		zap.Int("horizon_days", req.HorizonDays),
		zap.Int("created", len(created)),
		zap.Int("skipped", skipped),
	)
	return created, nil
}

// Occupancy returns the bed grid of a slot on a date
func (s *ScheduleService) Occupancy(ctx context.Context, slotID uint, date time.Time) (*Occupancy, error) {
	slot, err := s.slots.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	day := cycle.Day(date)
	sessions, err := s.sessions.ListSessions(ctx, repository.SessionFilter{SlotID: &slotID, From: &day, To: &day})
	if err != nil {
		return nil, err
	}

	occupied := allocator.OccupiedBeds(sessions, slotID, day)
	if occupied == nil {
		occupied = []int{}
	}
	view := &Occupancy{
		SlotID:   slotID,
		Date:     day,
		Capacity: slot.Capacity(),
		Occupied: occupied,
		Free:     allocator.FreeBeds(occupied, slot.Capacity()),
	}
	if bed, ok := allocator.NextAvailableBed(occupied, slot.Capacity()); ok {
		view.NextBed = &bed
	}
	return view, nil
}

// Conflicts scans the schedule in [from, to] for double bookings and active
// sessions without a bed
func (s *ScheduleService) Conflicts(ctx context.Context, from, to time.Time) ([]allocator.BedConflict, error) {
	sessions, err := s.sessions.ListSessions(ctx, repository.SessionFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	conflicts, err := allocator.ScanConflicts(sessions, from, to)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		s.logger.Warn("bed conflicts found", zap.Int("count", len(conflicts)))
	}
	return conflicts, nil
}

func (s *ScheduleService) checkSlot(ctx context.Context, slotID uint) error {
	slot, err := s.slots.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	if !slot.IsActive {
		return apperrors.Input("slot_id", "slot %d is not active", slotID)
	}
	return nil
}
