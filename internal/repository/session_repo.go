package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hemodialysis-scheduler/internal/apperrors"
	"hemodialysis-scheduler/internal/cycle"
	"hemodialysis-scheduler/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionFilter narrows ListSessions; zero fields are ignored
type SessionFilter struct {
	PatientID *uint
	SlotID    *uint
	From      *time.Time
	To        *time.Time
	// IncludeArchived keeps moved-to-history sessions in the result
	IncludeArchived bool
}

// BedSnapshot is the claim state of one slot and date, read under the slot lock
type BedSnapshot struct {
	// Live are the sessions in a bed-holding state
	Live []models.Session
	// Claims maps every bed with a live claim row to its holder. Discharged
	// sessions whose bed release is still pending appear here but not in Live.
	Claims map[int]uint
}

// BedChooser picks a bed for session given its slot and the claim snapshot
type BedChooser func(session models.Session, slot models.Slot, snap BedSnapshot) (int, error)

// BedClaim activates a pre-scheduled session on a bed
type BedClaim struct {
	SessionID               uint
	StartedAt               time.Time
	PrescribedDurationHours *float64
	Choose                  BedChooser
}

var holdingStates = []models.SessionState{models.StateActive, models.StateReadyForDischarge}

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// LoadOpenSessions fetches every non-archived session that can still transition
func (r *SessionRepository) LoadOpenSessions(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Where("state IN ? AND moved_to_history = ?", models.OpenStates, false).
		Order("session_date ASC, id ASC").
		Find(&sessions).Error
	return sessions, err
}

// LoadPendingEffects fetches discharged sessions whose bed release or
// counter advance has not been applied yet
func (r *SessionRepository) LoadPendingEffects(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Where("state = ?", models.StateDischarged).
		Where(r.db.
			Where("bed_number IS NOT NULL AND bed_released_at IS NULL").
			Or("outcome <> ? AND counters_advanced_at IS NULL", models.OutcomeMissed)).
		Order("id ASC").
		Find(&sessions).Error
	return sessions, err
}

// GetSession retrieves a session by ID
func (r *SessionRepository) GetSession(ctx context.Context, id uint) (*models.Session, error) {
	var s models.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &s, nil
}

// ListSessions retrieves sessions matching the filter
func (r *SessionRepository) ListSessions(ctx context.Context, f SessionFilter) ([]models.Session, error) {
	q := r.db.WithContext(ctx)
	if f.PatientID != nil {
		q = q.Where("patient_id = ?", *f.PatientID)
	}
	if f.SlotID != nil {
		q = q.Where("slot_id = ?", *f.SlotID)
	}
	if f.From != nil {
		q = q.Where("session_date >= ?", cycle.Day(*f.From))
	}
	if f.To != nil {
		q = q.Where("session_date <= ?", cycle.Day(*f.To))
	}
	if !f.IncludeArchived {
		q = q.Where("moved_to_history = ?", false)
	}
	var sessions []models.Session
	err := q.Order("session_date ASC, slot_id ASC, bed_number ASC, id ASC").Find(&sessions).Error
	return sessions, err
}

// PatientSessionDates lists the dates in [from, to] on which the patient already has a session
func (r *SessionRepository) PatientSessionDates(ctx context.Context, patientID uint, from, to time.Time) ([]time.Time, error) {
	var dates []time.Time
	err := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("patient_id = ? AND session_date >= ? AND session_date <= ?", patientID, cycle.Day(from), cycle.Day(to)).
		Pluck("session_date", &dates).Error
	return dates, err
}

// CreateSession inserts a single session
func (r *SessionRepository) CreateSession(ctx context.Context, s *models.Session) (uint, error) {
	s.Date = cycle.Day(s.Date)
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return 0, err
	}
	return s.ID, nil
}

// CreateSessions inserts a batch of sessions in one transaction
func (r *SessionRepository) CreateSessions(ctx context.Context, sessions []models.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	for i := range sessions {
		sessions[i].Date = cycle.Day(sessions[i].Date)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(sessions, 100).Error
	})
}

// TransitionState applies change only while the session is still in state from.
// It reports false when another writer moved the session first.
func (r *SessionRepository) TransitionState(ctx context.Context, id uint, from models.SessionState, change models.StateChange) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND state = ?", id, from).
		Updates(change.Columns())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateDetails writes the non-bed fields of a partial update
func (r *SessionRepository) UpdateDetails(ctx context.Context, id uint, upd models.SessionUpdate) error {
	cols := map[string]interface{}{}
	if upd.PrescribedDurationHours != nil {
		cols["prescribed_duration_hours"] = *upd.PrescribedDurationHours
	}
	if upd.Notes != nil {
		cols["notes"] = *upd.Notes
	}
	if len(cols) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// ClaimBed activates a pre-scheduled session. The slot row is locked for the
// duration of the transaction so concurrent claims on one slot run one at a time.
func (r *SessionRepository) ClaimBed(ctx context.Context, claim BedClaim) (*models.Session, error) {
	var out *models.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = claimBed(tx, claim)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BookAndClaim creates sess and activates it on a bed in one transaction, so
// a walk-in whose claim fails leaves no booking behind
func (r *SessionRepository) BookAndClaim(ctx context.Context, sess *models.Session, claim BedClaim) (*models.Session, error) {
	var out *models.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess.Date = cycle.Day(sess.Date)
		sess.State = models.StatePreScheduled
		if err := tx.Create(sess).Error; err != nil {
			return err
		}
		claim.SessionID = sess.ID
		var err error
		out, err = claimBed(tx, claim)
		return err
	})
	if err != nil {
		sess.ID = 0
		return nil, err
	}
	return out, nil
}

func claimBed(tx *gorm.DB, claim BedClaim) (*models.Session, error) {
	s, slot, snap, err := lockForBedChange(tx, claim.SessionID)
	if err != nil {
		return nil, err
	}
	if s.State != models.StatePreScheduled {
		return nil, &apperrors.TransitionError{SessionID: s.ID, From: string(s.State), Event: "activate"}
	}

	bed, err := claim.Choose(*s, *slot, snap)
	if err != nil {
		return nil, err
	}
	if err := checkClaimFree(snap, bed, s.ID); err != nil {
		return nil, err
	}

	change := models.StateChange{
		To:                      models.StateActive,
		BedNumber:               &bed,
		TreatmentStartedAt:      &claim.StartedAt,
		PrescribedDurationHours: claim.PrescribedDurationHours,
	}
	res := tx.Model(&models.Session{}).
		Where("id = ? AND state = ?", s.ID, models.StatePreScheduled).
		Updates(change.Columns())
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &apperrors.TransitionError{SessionID: s.ID, From: string(s.State), Event: "activate"}
	}

	if err := setBedOccupancy(tx, slot.ID, bed, s.Date, s.ID, claim.StartedAt); err != nil {
		return nil, err
	}
	change.Apply(s)
	return s, nil
}

// MoveBed reassigns the bed of a session that currently holds one
func (r *SessionRepository) MoveBed(ctx context.Context, id uint, at time.Time, choose BedChooser) (*models.Session, error) {
	var out models.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, slot, snap, err := lockForBedChange(tx, id)
		if err != nil {
			return err
		}
		if !s.State.HoldsBed() {
			return &apperrors.TransitionError{SessionID: s.ID, From: string(s.State), Event: "reassign bed"}
		}

		bed, err := choose(*s, *slot, snap)
		if err != nil {
			return err
		}
		if s.BedNumber != nil && *s.BedNumber == bed {
			out = *s
			return nil
		}
		if err := checkClaimFree(snap, bed, s.ID); err != nil {
			return err
		}

		if err := releaseOccupancy(tx, s.ID, at); err != nil {
			return err
		}
		if err := tx.Model(&models.Session{}).Where("id = ?", s.ID).Update("bed_number", bed).Error; err != nil {
			return err
		}
		if err := setBedOccupancy(tx, slot.ID, bed, s.Date, s.ID, at); err != nil {
			return err
		}
		s.BedNumber = &bed
		out = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReleaseBed deactivates the session's bed claim and stamps bed_released_at.
// It reports false when the release had already been applied.
func (r *SessionRepository) ReleaseBed(ctx context.Context, sessionID uint, at time.Time) (bool, error) {
	released := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Session{}).
			Where("id = ? AND bed_released_at IS NULL", sessionID).
			Update("bed_released_at", at)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		released = true
		return releaseOccupancy(tx, sessionID, at)
	})
	return released, err
}

// lockForBedChange locks the session and its slot, then reads the claim
// snapshot of that slot and date
func lockForBedChange(tx *gorm.DB, id uint) (*models.Session, *models.Slot, BedSnapshot, error) {
	var s models.Session
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, BedSnapshot{}, fmt.Errorf("session %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, nil, BedSnapshot{}, err
	}
	if s.SlotID == nil {
		return nil, nil, BedSnapshot{}, apperrors.Input("slot_id", "session %d has no slot assigned", s.ID)
	}

	var slot models.Slot
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", *s.SlotID).First(&slot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, BedSnapshot{}, fmt.Errorf("slot %d: %w", *s.SlotID, apperrors.ErrNotFound)
		}
		return nil, nil, BedSnapshot{}, err
	}

	day := cycle.Day(s.Date)
	var snap BedSnapshot
	err := tx.Where("slot_id = ? AND session_date = ? AND state IN ? AND moved_to_history = ? AND bed_number IS NOT NULL",
		slot.ID, day, holdingStates, false).
		Find(&snap.Live).Error
	if err != nil {
		return nil, nil, BedSnapshot{}, err
	}

	var claims []models.BedOccupancy
	if err := tx.Where("slot_id = ? AND session_date = ? AND is_active = ?", slot.ID, day, true).Find(&claims).Error; err != nil {
		return nil, nil, BedSnapshot{}, err
	}
	snap.Claims = make(map[int]uint, len(claims))
	for _, c := range claims {
		snap.Claims[c.BedNumber] = c.SessionID
	}
	return &s, &slot, snap, nil
}

// checkClaimFree rejects a bed whose live claim row belongs to another session
func checkClaimFree(snap BedSnapshot, bed int, sessionID uint) error {
	if holder, ok := snap.Claims[bed]; ok && holder != sessionID {
		return &apperrors.ConflictError{SessionID: holder, Reason: fmt.Sprintf("bed %d already claimed", bed)}
	}
	return nil
}

// setBedOccupancy records a live claim; the unique claim key rejects a
// second live claim on the same bed
func setBedOccupancy(tx *gorm.DB, slotID uint, bed int, date time.Time, sessionID uint, at time.Time) error {
	key := models.BedClaimKey(slotID, bed, cycle.Day(date))
	occ := models.BedOccupancy{
		SlotID:    slotID,
		BedNumber: bed,
		Date:      cycle.Day(date),
		SessionID: sessionID,
		IsActive:  true,
		ClaimKey:  &key,
		ClaimedAt: at,
	}
	if err := tx.Create(&occ).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// a claim committed outside the slot lock; name its holder when the
			// transaction can still be read (postgres aborts it)
			var holder models.BedOccupancy
			_ = tx.Where("claim_key = ?", key).Limit(1).Find(&holder).Error
			return &apperrors.ConflictError{SessionID: holder.SessionID, Reason: fmt.Sprintf("bed %d already claimed", bed)}
		}
		return err
	}
	return nil
}

func releaseOccupancy(tx *gorm.DB, sessionID uint, at time.Time) error {
	return tx.Model(&models.BedOccupancy{}).
		Where("session_id = ? AND is_active = ?", sessionID, true).
		Updates(map[string]interface{}{
			"is_active":   false,
			"claim_key":   gorm.Expr("NULL"),
			"released_at": at,
		}).Error
}
