package service

import (
	"context"
	"time"

	"hemodialysis-scheduler/internal/equipment"
	"hemodialysis-scheduler/internal/events"
	"hemodialysis-scheduler/internal/models"

	"go.uber.org/zap"
)

const recentAlertsLimit = 20

// EquipmentUsage is a patient's counters with their alert bands
type EquipmentUsage struct {
	PatientID    uint                                     `json:"patient_id"`
	Counters     equipment.Counters                       `json:"counters"`
	Status       map[equipment.Item]equipment.UsageStatus `json:"status"`
	RecentAlerts []models.EquipmentAlert                  `json:"recent_alerts"`
}

type EquipmentService struct {
	store     EquipmentStore
	publisher events.Publisher
	logger    *zap.Logger
}

func NewEquipmentService(store EquipmentStore, publisher events.Publisher, logger *zap.Logger) *EquipmentService {
	return &EquipmentService{store: store, publisher: publisher, logger: logger}
}

func toCounters(eq models.PatientEquipment) equipment.Counters {
	return equipment.NewCounters(eq.DialyserCount, eq.TubingCount, eq.DialysersPurchased, eq.TubingPurchased)
}

// AdvanceOnDischarge records one treatment's equipment use for a discharged
// session. A session already counted is a no-op returning applied=false.
func (s *EquipmentService) AdvanceOnDischarge(ctx context.Context, sess *models.Session, at time.Time) (equipment.Advance, bool, error) {
	var adv equipment.Advance
	eq, applied, err := s.store.AdvanceForSession(ctx, sess.ID, sess.PatientID, at,
		func(cur models.PatientEquipment) models.PatientEquipment {
			var next equipment.Counters
			next, adv = equipment.AdvanceOnDischarge(toCounters(cur))
			cur.DialyserCount = next.Dialyser.Count
			cur.TubingCount = next.Tubing.Count
			cur.DialysersPurchased = next.Dialyser.Purchased
			cur.TubingPurchased = next.Tubing.Purchased
			return cur
		})
	if err != nil || !applied {
		return adv, applied, err
	}

	s.logger.Info("equipment advanced",
		zap.Uint("session_id", sess.ID),
		zap.Uint("patient_id", sess.PatientID),
		zap.Int("dialyser_count", adv.DialyserCount),
		zap.Int("tubing_count", adv.TubingCount),
		zap.Int("dialysers_purchased_delta", adv.DialysersPurchasedDelta),
		zap.Int("tubing_purchased_delta", adv.TubingPurchasedDelta),
	)
	s.raiseAlerts(ctx, sess, toCounters(eq), at)
	return adv, true, nil
}

// raiseAlerts stores and publishes an alert for every counter outside the OK band.
// Alert delivery never fails the advance.
func (s *EquipmentService) raiseAlerts(ctx context.Context, sess *models.Session, c equipment.Counters, at time.Time) {
	var alerts []models.EquipmentAlert
	for _, item := range []equipment.Item{equipment.Dialyser, equipment.Tubing} {
		counter := c.Dialyser
		if item == equipment.Tubing {
			counter = c.Tubing
		}
		st := equipment.ClassifyUsage(counter.Count, counter.Max)
		if !st.Alerting() {
			continue
		}
		alerts = append(alerts, models.EquipmentAlert{
			PatientID: sess.PatientID,
			SessionID: sess.ID,
			Item:      string(item),
			Status:    string(st.Status),
			Count:     counter.Count,
			Max:       counter.Max,
			Message:   st.Message,
			CreatedAt: at,
		})
		s.publisher.Publish(ctx, events.TypeEquipmentAlert, events.EquipmentAlertPayload{
			PatientID:     sess.PatientID,
			SessionID:     sess.ID,
			Item:          string(item),
			Status:        string(st.Status),
			Count:         counter.Count,
			RemainingUses: st.RemainingUses,
			Message:       st.Message,
		})
	}
	if err := s.store.CreateAlerts(ctx, alerts); err != nil {
		s.logger.Error("failed to store equipment alerts", zap.Uint("patient_id", sess.PatientID), zap.Error(err))
	}
}

// Usage returns the patient's counters, their bands and recent alerts
func (s *EquipmentService) Usage(ctx context.Context, patientID uint) (*EquipmentUsage, error) {
	eq, err := s.store.GetCounters(ctx, patientID)
	if err != nil {
		return nil, err
	}
	alerts, err := s.store.ListAlerts(ctx, patientID, recentAlertsLimit)
	if err != nil {
		return nil, err
	}
	c := toCounters(eq)
	return &EquipmentUsage{
		PatientID:    patientID,
		Counters:     c,
		Status:       c.Status(),
		RecentAlerts: alerts,
	}, nil
}
