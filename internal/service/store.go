package service

import (
	"context"
	"time"

	"hemodialysis-scheduler/internal/models"
	"hemodialysis-scheduler/internal/repository"
)

// SessionStore persists sessions and bed claims. Implemented by
// repository.SessionRepository and memstore.Store.
type SessionStore interface {
	LoadOpenSessions(ctx context.Context) ([]models.Session, error)
	LoadPendingEffects(ctx context.Context) ([]models.Session, error)
	GetSession(ctx context.Context, id uint) (*models.Session, error)
	ListSessions(ctx context.Context, f repository.SessionFilter) ([]models.Session, error)
	PatientSessionDates(ctx context.Context, patientID uint, from, to time.Time) ([]time.Time, error)
	CreateSession(ctx context.Context, s *models.Session) (uint, error)
	CreateSessions(ctx context.Context, sessions []models.Session) error
	TransitionState(ctx context.Context, id uint, from models.SessionState, change models.StateChange) (bool, error)
	UpdateDetails(ctx context.Context, id uint, upd models.SessionUpdate) error
	ClaimBed(ctx context.Context, claim repository.BedClaim) (*models.Session, error)
	BookAndClaim(ctx context.Context, s *models.Session, claim repository.BedClaim) (*models.Session, error)
	MoveBed(ctx context.Context, id uint, at time.Time, choose repository.BedChooser) (*models.Session, error)
	ReleaseBed(ctx context.Context, sessionID uint, at time.Time) (bool, error)
}

// SlotStore persists slot configuration
type SlotStore interface {
	ListSlots(ctx context.Context, activeOnly bool) ([]models.Slot, error)
	GetSlot(ctx context.Context, id uint) (*models.Slot, error)
	CreateSlot(ctx context.Context, slot *models.Slot) error
	UpdateSlot(ctx context.Context, slot *models.Slot) error
}

// SlotReader looks up a single slot, usually through the cache
type SlotReader interface {
	GetSlot(ctx context.Context, id uint) (*models.Slot, error)
}

// EquipmentStore persists reuse counters and raised alerts
type EquipmentStore interface {
	GetCounters(ctx context.Context, patientID uint) (models.PatientEquipment, error)
	AdvanceForSession(ctx context.Context, sessionID, patientID uint, at time.Time, update repository.CounterUpdate) (models.PatientEquipment, bool, error)
	CreateAlerts(ctx context.Context, alerts []models.EquipmentAlert) error
	ListAlerts(ctx context.Context, patientID uint, limit int) ([]models.EquipmentAlert, error)
}
