package service

import (
	"context"
	"strings"
	"time"

	"hemodialysis-scheduler/internal/apperrors"
	"hemodialysis-scheduler/internal/models"

	"go.uber.org/zap"
)

// SlotCache is the read-through cache in front of the slot store
type SlotCache interface {
	SlotReader
	Invalidate(ctx context.Context, id uint)
}

// SlotRequest is the body of a slot create or update
type SlotRequest struct {
	Name        string `json:"name" binding:"required"`
	StartTime   string `json:"start_time" binding:"required"`
	EndTime     string `json:"end_time" binding:"required"`
	BedCapacity int    `json:"bed_capacity"`
	IsActive    *bool  `json:"is_active"`
}

type SlotService struct {
	store  SlotStore
	cache  SlotCache
	logger *zap.Logger
}

func NewSlotService(store SlotStore, cache SlotCache, logger *zap.Logger) *SlotService {
	return &SlotService{store: store, cache: cache, logger: logger}
}

// ListSlots retrieves the slots open for booking
func (s *SlotService) ListSlots(ctx context.Context, includeInactive bool) ([]models.Slot, error) {
	return s.store.ListSlots(ctx, !includeInactive)
}

// GetSlot retrieves a slot through the cache
func (s *SlotService) GetSlot(ctx context.Context, id uint) (*models.Slot, error) {
	return s.cache.GetSlot(ctx, id)
}

// CreateSlot validates and stores a new slot
func (s *SlotService) CreateSlot(ctx context.Context, req SlotRequest) (*models.Slot, error) {
	slot := &models.Slot{IsActive: true}
	if err := applySlotRequest(slot, req); err != nil {
		return nil, err
	}
	if err := s.store.CreateSlot(ctx, slot); err != nil {
		return nil, err
	}
	s.logger.Info("slot created", zap.Uint("slot_id", slot.ID), zap.String("name", slot.Name), zap.Int("capacity", slot.BedCapacity))
	return slot, nil
}

// UpdateSlot replaces a slot's configuration and drops its cache entry.
// Shrinking capacity leaves sessions already on higher beds in place.
func (s *SlotService) UpdateSlot(ctx context.Context, id uint, req SlotRequest) (*models.Slot, error) {
	slot, err := s.store.GetSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applySlotRequest(slot, req); err != nil {
		return nil, err
	}
	if err := s.store.UpdateSlot(ctx, slot); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	s.logger.Info("slot updated", zap.Uint("slot_id", id), zap.Int("capacity", slot.BedCapacity), zap.Bool("active", slot.IsActive))
	return slot, nil
}

func applySlotRequest(slot *models.Slot, req SlotRequest) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return apperrors.Input("name", "must not be empty")
	}
	start, err := time.Parse("15:04", req.StartTime)
	if err != nil {
		return apperrors.Input("start_time", "%q is not HH:MM", req.StartTime)
	}
	end, err := time.Parse("15:04", req.EndTime)
	if err != nil {
		return apperrors.Input("end_time", "%q is not HH:MM", req.EndTime)
	}
	if !end.After(start) {
		return apperrors.Input("end_time", "must be after start_time")
	}
	if req.BedCapacity < 0 {
		return apperrors.Input("bed_capacity", "must not be negative")
	}

	slot.Name = name
	slot.StartTime = start.Format("15:04")
	slot.EndTime = end.Format("15:04")
	slot.BedCapacity = req.BedCapacity
	if slot.BedCapacity == 0 {
		slot.BedCapacity = models.DefaultBedCapacity
	}
	if req.IsActive != nil {
		slot.IsActive = *req.IsActive
	}
	return nil
}
