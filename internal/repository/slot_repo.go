package repository

import (
	"context"
	"errors"
	"fmt"

	"hemodialysis-scheduler/internal/apperrors"
	"hemodialysis-scheduler/internal/models"

	"gorm.io/gorm"
)

type SlotRepository struct {
	db *gorm.DB
}

func NewSlotRepo(db *gorm.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// ListSlots retrieves slots ordered by start time
func (r *SlotRepository) ListSlots(ctx context.Context, activeOnly bool) ([]models.Slot, error) {
	var slots []models.Slot
	q := r.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Order("start_time ASC, id ASC").Find(&slots).Error
	return slots, err
}

// GetSlot retrieves a slot by ID
func (r *SlotRepository) GetSlot(ctx context.Context, id uint) (*models.Slot, error) {
	var slot models.Slot
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&slot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("slot %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &slot, nil
}

// CreateSlot creates a new slot
func (r *SlotRepository) CreateSlot(ctx context.Context, slot *models.Slot) error {
	return r.db.WithContext(ctx).Create(slot).Error
}

// UpdateSlot updates an existing slot
func (r *SlotRepository) UpdateSlot(ctx context.Context, slot *models.Slot) error {
	res := r.db.WithContext(ctx).Model(&models.Slot{}).
		Where("id = ?", slot.ID).
		Updates(map[string]interface{}{
			"name":         slot.Name,
			"start_time":   slot.StartTime,
			"end_time":     slot.EndTime,
			"bed_capacity": slot.BedCapacity,
			"is_active":    slot.IsActive,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("slot %d: %w", slot.ID, apperrors.ErrNotFound)
	}
	return nil
}
