package service

import (
	"context"
	"errors"
	"testing"

	"hemodialysis-scheduler/internal/apperrors"
	"hemodialysis-scheduler/internal/models"
	"hemodialysis-scheduler/internal/repository/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSlotCache struct {
	mock.Mock
}

func (m *mockSlotCache) GetSlot(ctx context.Context, id uint) (*models.Slot, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*models.Slot), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSlotCache) Invalidate(ctx context.Context, id uint) {
	m.Called(ctx, id)
}

func TestSlotService_CreateSlot(t *testing.T) {
	svc := NewSlotService(memstore.New(), &mockSlotCache{}, zap.NewNop())
	ctx := context.Background()

	slot, err := svc.CreateSlot(ctx, SlotRequest{Name: " Morning ", StartTime: "06:00", EndTime: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, "Morning", slot.Name)
	assert.Equal(t, models.DefaultBedCapacity, slot.BedCapacity)
	assert.True(t, slot.IsActive)
	assert.NotZero(t, slot.ID)

	tests := []struct {
		name  string
		req   SlotRequest
		field string
	}{
		{"blank name", SlotRequest{Name: " ", StartTime: "06:00", EndTime: "10:00"}, "name"},
		{"bad start", SlotRequest{Name: "A", StartTime: "6am", EndTime: "10:00"}, "start_time"},
		{"bad end", SlotRequest{Name: "A", StartTime: "06:00", EndTime: "25:00"}, "end_time"},
		{"end before start", SlotRequest{Name: "A", StartTime: "10:00", EndTime: "06:00"}, "end_time"},
		{"negative capacity", SlotRequest{Name: "A", StartTime: "06:00", EndTime: "10:00", BedCapacity: -1}, "bed_capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSlot(ctx, tt.req)
			var ie *apperrors.InputError
			require.True(t, errors.As(err, &ie), "got %v", err)
			assert.Equal(t, tt.field, ie.Field)
		})
	}
}

func TestSlotService_UpdateSlotInvalidatesCache(t *testing.T) {
	store := memstore.New()
	cache := &mockSlotCache{}
	svc := NewSlotService(store, cache, zap.NewNop())
	ctx := context.Background()

	slot, err := svc.CreateSlot(ctx, SlotRequest{Name: "Evening", StartTime: "16:00", EndTime: "20:00", BedCapacity: 12})
	require.NoError(t, err)

	cache.On("Invalidate", mock.Anything, slot.ID).Once()
	inactive := false
	updated, err := svc.UpdateSlot(ctx, slot.ID, SlotRequest{Name: "Evening", StartTime: "16:00", EndTime: "21:00", BedCapacity: 8, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 8, updated.BedCapacity)
	assert.Equal(t, "21:00", updated.EndTime)
	assert.False(t, updated.IsActive)
	cache.AssertExpectations(t)

	active, err := svc.ListSlots(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := svc.ListSlots(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = svc.UpdateSlot(ctx, 404, SlotRequest{Name: "X", StartTime: "01:00", EndTime: "02:00"})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSlotService_GetSlotReadsCache(t *testing.T) {
	cache := &mockSlotCache{}
	cache.On("GetSlot", mock.Anything, uint(3)).Return(&models.Slot{ID: 3, Name: "Cached"}, nil)
	svc := NewSlotService(memstore.New(), cache, zap.NewNop())

	slot, err := svc.GetSlot(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Cached", slot.Name)
	cache.AssertExpectations(t)
}
