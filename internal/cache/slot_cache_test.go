package cache

import (
	"context"
	"testing"
	"time"

	"hemodialysis-scheduler/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockSlotSource struct {
	mock.Mock
}

func (m *mockSlotSource) GetSlot(ctx context.Context, id uint) (*models.Slot, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*models.Slot), args.Error(1)
	}
	return nil, args.Error(1)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestSlotCache_ReadThrough(t *testing.T) {
	mr, client := setupTestRedis(t)
	src := &mockSlotSource{}
	src.On("GetSlot", mock.Anything, uint(1)).
		Return(&models.Slot{ID: 1, Name: "Morning", BedCapacity: 8}, nil).Once()

	c := NewSlotCache(src, client, time.Minute, zap.NewNop())
	ctx := context.Background()

	slot, err := c.GetSlot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 8, slot.BedCapacity)
	assert.True(t, mr.Exists("dialysis:slot:1"))

	// second read is served from redis
	slot, err = c.GetSlot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Morning", slot.Name)
	src.AssertExpectations(t)
}

func TestSlotCache_InvalidateAndExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	src := &mockSlotSource{}
	src.On("GetSlot", mock.Anything, uint(2)).
		Return(&models.Slot{ID: 2, BedCapacity: 6}, nil).Times(3)

	c := NewSlotCache(src, client, time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := c.GetSlot(ctx, 2)
	require.NoError(t, err)

	c.Invalidate(ctx, 2)
	assert.False(t, mr.Exists("dialysis:slot:2"))
	_, err = c.GetSlot(ctx, 2)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = c.GetSlot(ctx, 2)
	require.NoError(t, err)
	src.AssertExpectations(t)
}

func TestSlotCache_NilClientPassesThrough(t *testing.T) {
	src := &mockSlotSource{}
	src.On("GetSlot", mock.Anything, uint(3)).Return(&models.Slot{ID: 3}, nil).Twice()

	c := NewSlotCache(src, nil, time.Minute, zap.NewNop())
	for i := 0; i < 2; i++ {
		_, err := c.GetSlot(context.Background(), 3)
		require.NoError(t, err)
	}
	c.Invalidate(context.Background(), 3)
	src.AssertExpectations(t)
}
