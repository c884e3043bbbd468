package repository

import (
	"context"
	"errors"
	"time"

	"hemodialysis-scheduler/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterUpdate computes the next counters from the current ones
type CounterUpdate func(current models.PatientEquipment) models.PatientEquipment

type EquipmentRepository struct {
	db *gorm.DB
}

func NewEquipmentRepo(db *gorm.DB) *EquipmentRepository {
	return &EquipmentRepository{db: db}
}

// GetCounters returns the patient's reuse counters; a patient with no row starts at zero
func (r *EquipmentRepository) GetCounters(ctx context.Context, patientID uint) (models.PatientEquipment, error) {
	var eq models.PatientEquipment
	err := r.db.WithContext(ctx).Where("patient_id = ?", patientID).First(&eq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PatientEquipment{PatientID: patientID}, nil
	}
	return eq, err
}

// AdvanceForSession applies update to the patient's counters once per session.
// The session's counters_advanced_at stamp guards the write, so a retry after
// a partial failure never double counts. It reports false when already applied.
func (r *EquipmentRepository) AdvanceForSession(ctx context.Context, sessionID, patientID uint, at time.Time, update CounterUpdate) (models.PatientEquipment, bool, error) {
	var next models.PatientEquipment
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Session{}).
			Where("id = ? AND counters_advanced_at IS NULL", sessionID).
			Update("counters_advanced_at", at)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		current := models.PatientEquipment{PatientID: patientID}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("patient_id = ?", patientID).First(&current).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		next = update(current)
		next.PatientID = patientID
		next.UpdatedAt = at
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&next).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	return next, applied, err
}

// CreateAlerts stores raised equipment alerts
func (r *EquipmentRepository) CreateAlerts(ctx context.Context, alerts []models.EquipmentAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&alerts).Error
}

// ListAlerts returns the patient's alerts, newest first
func (r *EquipmentRepository) ListAlerts(ctx context.Context, patientID uint, limit int) ([]models.EquipmentAlert, error) {
	var alerts []models.EquipmentAlert
	q := r.db.WithContext(ctx).Where("patient_id = ?", patientID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&alerts).Error
	return alerts, err
}
