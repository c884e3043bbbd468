package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hemodialysis-scheduler/internal/allocator"
	"hemodialysis-scheduler/internal/apperrors"
	"hemodialysis-scheduler/internal/events"
	"hemodialysis-scheduler/internal/lifecycle"
	"hemodialysis-scheduler/internal/models"
	"hemodialysis-scheduler/internal/repository"

	"go.uber.org/zap"
)

// MaxPrescribedDurationHours bounds a prescription; the auto-discharge window
// ends every treatment long before it
const MaxPrescribedDurationHours = 24

// ActivateRequest carries the optional inputs of a manual activation
type ActivateRequest struct {
	BedNumber               *int       `json:"bed_number"`
	PrescribedDurationHours *float64   `json:"prescribed_duration_hours"`
	StartedAt               *time.Time `json:"started_at"`
}

// LifecycleService drives sessions through the lifecycle state machine and
// applies the side effects of each transition
type LifecycleService struct {
	sessions  SessionStore
	equipment *EquipmentService
	publisher events.Publisher
	logger    *zap.Logger
	window    time.Duration
	now       func() time.Time
}

func NewLifecycleService(
	sessions SessionStore,
	equipmentService *EquipmentService,
	publisher events.Publisher,
	autoDischargeWindow time.Duration,
	logger *zap.Logger,
) *LifecycleService {
	if autoDischargeWindow <= 0 {
		autoDischargeWindow = lifecycle.AutoDischargeWindow
	}
	return &LifecycleService{
		sessions:  sessions,
		equipment: equipmentService,
		publisher: publisher,
		logger:    logger,
		window:    autoDischargeWindow,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func validateDuration(hours *float64) error {
	if hours != nil && (*hours <= 0 || *hours > MaxPrescribedDurationHours) {
		return apperrors.Input("prescribed_duration_hours", "must be above 0 and at most %d", MaxPrescribedDurationHours)
	}
	return nil
}

func (s *LifecycleService) bedClaim(sessionID uint, req ActivateRequest) (repository.BedClaim, error) {
	if err := validateDuration(req.PrescribedDurationHours); err != nil {
		return repository.BedClaim{}, err
	}
	startedAt := s.now()
	if req.StartedAt != nil {
		startedAt = req.StartedAt.UTC()
	}
	return repository.BedClaim{
		SessionID:               sessionID,
		StartedAt:               startedAt,
		PrescribedDurationHours: req.PrescribedDurationHours,
		Choose:                  chooseBed(req.BedNumber),
	}, nil
}

// Activate moves a pre-scheduled session to active on a bed. A requested bed
// is validated against the slot's live claims; otherwise the next bed in
// allocation order is taken.
func (s *LifecycleService) Activate(ctx context.Context, id uint, req ActivateRequest) (*models.Session, error) {
	claim, err := s.bedClaim(id, req)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.ClaimBed(ctx, claim)
	if err != nil {
		return nil, err
	}

	s.logger.Info("session activated",
		zap.Uint("session_id", sess.ID),
		zap.Uint("patient_id", sess.PatientID),
		zap.Int("bed_number", *sess.BedNumber),
	)
	s.publishBed(ctx, sess, "claimed")
	return sess, nil
}

// Admit books and activates a walk-in in one step. Nothing is stored when
// no bed can be claimed.
func (s *LifecycleService) Admit(ctx context.Context, sess *models.Session, req ActivateRequest) (*models.Session, error) {
	claim, err := s.bedClaim(0, req)
	if err != nil {
		return nil, err
	}
	active, err := s.sessions.BookAndClaim(ctx, sess, claim)
	if err != nil {
		return nil, err
	}

	s.logger.Info("walk-in admitted",
		zap.Uint("session_id", active.ID),
		zap.Uint("patient_id", active.PatientID),
		zap.Int("bed_number", *active.BedNumber),
	)
	s.publishBed(ctx, active, "claimed")
	return active, nil
}

// chooseBed validates a requested bed or picks the next free one. Beds whose
// claim row is still live count as taken, including those of discharged
// sessions with a pending release.
func chooseBed(requested *int) repository.BedChooser {
	return func(sess models.Session, slot models.Slot, snap repository.BedSnapshot) (int, error) {
		if requested != nil {
			p := allocator.Proposal{SlotID: slot.ID, BedNumber: *requested, Date: sess.Date, Capacity: slot.Capacity()}
			if err := allocator.ValidateAssignment(p, sess.ID, snap.Live).Err(); err != nil {
				return 0, err
			}
			if holder, ok := snap.Claims[*requested]; ok && holder != sess.ID {
				return 0, &apperrors.ConflictError{SessionID: holder, Reason: fmt.Sprintf("bed %d is awaiting release", *requested)}
			}
			return *requested, nil
		}
		occupied := allocator.OccupiedBeds(snap.Live, slot.ID, sess.Date)
		for bed, holder := range snap.Claims {
			if holder != sess.ID {
				occupied = append(occupied, bed)
			}
		}
		bed, ok := allocator.NextAvailableBed(occupied, slot.Capacity())
		if !ok {
			return 0, fmt.Errorf("slot %d on %s: %w", slot.ID, sess.Date.Format("2006-01-02"), apperrors.ErrNoBedAvailable)
		}
		return bed, nil
	}
}

// MarkMissed discharges a pre-scheduled session whose patient did not arrive
func (s *LifecycleService) MarkMissed(ctx context.Context, id uint) (*models.Session, error) {
	return s.fire(ctx, id, lifecycle.EvMarkMissed)
}

// ForceDischarge discharges a session from any open state on administrator request
func (s *LifecycleService) ForceDischarge(ctx context.Context, id uint) (*models.Session, error) {
	return s.fire(ctx, id, lifecycle.EvForceDischarge)
}

func (s *LifecycleService) fire(ctx context.Context, id uint, ev lifecycle.Event) (*models.Session, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, sess, ev); err != nil {
		return nil, err
	}
	return sess, nil
}

// Advance applies the time-driven transition due for sess, if any. It reports
// whether a transition happened. Losing a race with another writer is not an error.
func (s *LifecycleService) Advance(ctx context.Context, sess *models.Session) (bool, error) {
	ev, due := lifecycle.Due(sess, s.now(), s.window)
	if !due {
		return false, nil
	}
	if err := s.apply(ctx, sess, ev); err != nil {
		if apperrors.IsTransition(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// apply commits the transition for ev with a compare-and-swap on the current
// state, then runs its side effects. sess is updated in place.
func (s *LifecycleService) apply(ctx context.Context, sess *models.Session, ev lifecycle.Event) error {
	tr, ok := lifecycle.TransitionFor(sess.State, ev)
	if !ok {
		return &apperrors.TransitionError{SessionID: sess.ID, From: string(sess.State), Event: string(ev)}
	}
	if tr.Effects.ClaimBed {
		// activation goes through ClaimBed so the bed and state commit together
		return &apperrors.TransitionError{SessionID: sess.ID, From: string(sess.State), Event: string(ev)}
	}

	change := lifecycle.Change(tr, s.now())
	swapped, err := s.sessions.TransitionState(ctx, sess.ID, tr.From, change)
	if err != nil {
		return fmt.Errorf("session %d: %s: %w", sess.ID, ev, err)
	}
	if !swapped {
		return &apperrors.TransitionError{SessionID: sess.ID, From: string(sess.State), Event: string(ev)}
	}
	change.Apply(sess)

	s.logger.Info("session transitioned",
		zap.Uint("session_id", sess.ID),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.String("event", string(ev)),
	)
	if tr.To != models.StateDischarged {
		return nil
	}

	s.publisher.Publish(ctx, events.TypeSessionDischarged, events.SessionDischargedPayload{
		SessionID: sess.ID,
		PatientID: sess.PatientID,
		Outcome:   string(sess.Outcome),
	})
	if tr.Effects.ReleaseBed || tr.Effects.AdvanceCounters {
		// the discharge is committed; failures stay pending for the next pass
		if err := s.ResumeEffects(ctx, sess); err != nil {
			s.logger.Warn("discharge side effects pending", zap.Uint("session_id", sess.ID), zap.Error(err))
		}
	}
	return nil
}

// ResumeEffects applies whichever discharge side effects sess has not had yet.
// Each effect is recorded on the session when it succeeds, so calling this
// again after a partial failure only retries what is missing.
func (s *LifecycleService) ResumeEffects(ctx context.Context, sess *models.Session) error {
	var errs []error
	now := s.now()

	if sess.NeedsBedRelease() {
		released, err := s.sessions.ReleaseBed(ctx, sess.ID, now)
		switch {
		case err != nil:
			errs = append(errs, s.sideEffectFailed(sess, "bed release", err))
		case released:
			sess.BedReleasedAt = &now
			s.publishBed(ctx, sess, "released")
		}
	}

	if sess.NeedsCounterAdvance() {
		_, _, err := s.equipment.AdvanceOnDischarge(ctx, sess, now)
		if err != nil {
			errs = append(errs, s.sideEffectFailed(sess, "equipment advance", err))
		} else {
			sess.CountersAdvancedAt = &now
		}
	}
	return errors.Join(errs...)
}

func (s *LifecycleService) sideEffectFailed(sess *models.Session, effect string, err error) error {
	failure := &apperrors.SideEffectFailure{SessionID: sess.ID, Effect: effect, Err: err}
	s.logger.Error("side effect failed", zap.Uint("session_id", sess.ID), zap.String("effect", effect), zap.Error(err))
	return failure
}

// UpdateSession applies a partial edit. A bed change is validated under the
// slot lock and only allowed while the session holds a bed.
func (s *LifecycleService) UpdateSession(ctx context.Context, id uint, upd models.SessionUpdate) (*models.Session, error) {
	if upd.Empty() {
		return nil, apperrors.Input("", "no fields to update")
	}
	if err := validateDuration(upd.PrescribedDurationHours); err != nil {
		return nil, err
	}

	if upd.BedNumber != nil {
		before, err := s.sessions.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		moved, err := s.sessions.MoveBed(ctx, id, s.now(), chooseBed(upd.BedNumber))
		if err != nil {
			return nil, err
		}
		if before.BedNumber != nil && *before.BedNumber != *moved.BedNumber {
			s.publishBed(ctx, before, "released")
			s.publishBed(ctx, moved, "claimed")
			s.logger.Info("bed reassigned",
				zap.Uint("session_id", id),
				zap.Int("from", *before.BedNumber),
				zap.Int("to", *moved.BedNumber),
			)
		}
	}

	if err := s.sessions.UpdateDetails(ctx, id, upd); err != nil {
		return nil, err
	}
	return s.sessions.GetSession(ctx, id)
}

func (s *LifecycleService) publishBed(ctx context.Context, sess *models.Session, action string) {
	if sess.SlotID == nil || sess.BedNumber == nil {
		return
	}
	s.publisher.Publish(ctx, events.TypeBedOccupancy, events.BedOccupancyPayload{
		SessionID: sess.ID,
		SlotID:    *sess.SlotID,
		BedNumber: *sess.BedNumber,
		Date:      sess.Date.Format("2006-01-02"),
		Action:    action,
	})
}
