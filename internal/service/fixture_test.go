package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hemodialysis-scheduler/internal/models"
	"hemodialysis-scheduler/internal/repository/memstore"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedEvent struct {
	Type    string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Payload: payload})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// flakyStore fails the first releaseFailures bed releases
type flakyStore struct {
	*memstore.Store
	mu              sync.Mutex
	releaseFailures int
}

func (f *flakyStore) ReleaseBed(ctx context.Context, sessionID uint, at time.Time) (bool, error) {
	f.mu.Lock()
	if f.releaseFailures > 0 {
		f.releaseFailures--
		f.mu.Unlock()
		return false, errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.Store.ReleaseBed(ctx, sessionID, at)
}

type fixture struct {
	store     *memstore.Store
	sessions  SessionStore
	pub       *recordingPublisher
	equipment *EquipmentService
	lifecycle *LifecycleService
	schedule  *ScheduleService
	worker    *WorkerService
	now       time.Time
	slot      models.Slot
}

var day = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, nil)
}

func newFixtureWithStore(t *testing.T, wrap func(*memstore.Store) SessionStore) *fixture {
	t.Helper()
	store := memstore.New()
	var sessions SessionStore = store
	if wrap != nil {
		sessions = wrap(store)
	}

	f := &fixture{
		store:    store,
		sessions: sessions,
		pub:      &recordingPublisher{},
		now:      day.Add(7 * time.Hour),
	}
	log := zap.NewNop()
	f.equipment = NewEquipmentService(store, f.pub, log)
	f.lifecycle = NewLifecycleService(sessions, f.equipment, f.pub, 0, log)
	f.lifecycle.now = func() time.Time { return f.now }
	f.schedule = NewScheduleService(sessions, store, f.lifecycle, log)
	f.worker = NewWorkerService(sessions, f.lifecycle, time.Minute, 4, log)

	f.slot = models.Slot{Name: "Morning", StartTime: "06:00", EndTime: "11:00", BedCapacity: 10, IsActive: true}
	require.NoError(t, store.CreateSlot(context.Background(), &f.slot))
	return f
}

// book creates a pre-scheduled session on the fixture slot
func (f *fixture) book(t *testing.T, patientID uint) *models.Session {
	t.Helper()
	sess, err := f.schedule.BookSession(context.Background(), BookingRequest{
		PatientID: patientID,
		SlotID:    f.slot.ID,
		Date:      day,
	})
	require.NoError(t, err)
	return sess
}

func (f *fixture) activate(t *testing.T, patientID uint, hours float64) *models.Session {
	t.Helper()
	sess := f.book(t, patientID)
	active, err := f.lifecycle.Activate(context.Background(), sess.ID, ActivateRequest{PrescribedDurationHours: &hours})
	require.NoError(t, err)
	return active
}

func (f *fixture) reload(t *testing.T, id uint) *models.Session {
	t.Helper()
	sess, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	return sess
}

func intPtr(v int) *int { return &v }
