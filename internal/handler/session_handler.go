package handler

import (
	"net/http"

	"hemodialysis-scheduler/internal/models"
	"hemodialysis-scheduler/internal/repository"
	"hemodialysis-scheduler/internal/service"
	"hemodialysis-scheduler/pkg/utils"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	scheduleService  *service.ScheduleService
	lifecycleService *service.LifecycleService
}

func NewSessionHandler(scheduleService *service.ScheduleService, lifecycleService *service.LifecycleService) *SessionHandler {
	return &SessionHandler{
		scheduleService:  scheduleService,
		lifecycleService: lifecycleService,
	}
}

// BookSessionRequest represents the request body for a manual booking
type BookSessionRequest struct {
	PatientID               uint     `json:"patient_id" binding:"required"`
	SlotID                  uint     `json:"slot_id" binding:"required"`
	Date                    string   `json:"session_date" binding:"required"`
	Notes                   string   `json:"notes"`
	Activate                bool     `json:"activate"`
	BedNumber               *int     `json:"bed_number"`
	PrescribedDurationHours *float64 `json:"prescribed_duration_hours"`
}

// ListSessions returns sessions filtered by date, slot and patient
func (h *SessionHandler) ListSessions(c *gin.Context) {
	var f repository.SessionFilter
	var err error

	if f.From, err = optionalDate(c, "date"); err != nil {
		utils.HandleError(c, err)
		return
	}
	f.To = f.From
	if f.From == nil {
		if f.From, err = optionalDate(c, "from"); err != nil {
			utils.HandleError(c, err)
			return
		}
		if f.To, err = optionalDate(c, "to"); err != nil {
			utils.HandleError(c, err)
			return
		}
	}
	if f.SlotID, err = optionalID(c, "slot_id"); err != nil {
		utils.HandleError(c, err)
		return
	}
	if f.PatientID, err = optionalID(c, "patient_id"); err != nil {
		utils.HandleError(c, err)
		return
	}
	f.IncludeArchived = c.Query("include_archived") == "true"

	sessions, err := h.scheduleService.ListSessions(c.Request.Context(), f)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns a single session
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	sess, err := h.scheduleService.GetSession(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, sess)
}

// CreateSession books a session, optionally activating it for a walk-in
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req BookSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	date, err := parseDate("session_date", req.Date)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	sess, err := h.scheduleService.BookSession(c.Request.Context(), service.BookingRequest{
		PatientID:               req.PatientID,
		SlotID:                  req.SlotID,
		Date:                    date,
		Notes:                   req.Notes,
		Activate:                req.Activate,
		BedNumber:               req.BedNumber,
		PrescribedDurationHours: req.PrescribedDurationHours,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, sess)
}

// UpdateSession applies a partial update: bed, prescribed duration or notes
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	var upd models.SessionUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.lifecycleService.UpdateSession(c.Request.Context(), id, upd)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, sess)
}

// ActivateSession starts treatment on a bed
func (h *SessionHandler) ActivateSession(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	var req service.ActivateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
	}

	sess, err := h.lifecycleService.Activate(c.Request.Context(), id, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, sess)
}

// MarkMissed records a no-show for a pre-scheduled session
func (h *SessionHandler) MarkMissed(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	sess, err := h.lifecycleService.MarkMissed(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, sess)
}

// DischargeSession force-discharges a session (admin only)
func (h *SessionHandler) DischargeSession(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	sess, err := h.lifecycleService.ForceDischarge(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, sess)
}

// GetConflicts scans a date range for double bookings and missing beds
func (h *SessionHandler) GetConflicts(c *gin.Context) {
	from, err := parseDate("from", c.Query("from"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	to, err := parseDate("to", c.DefaultQuery("to", c.Query("from")))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	conflicts, err := h.scheduleService.Conflicts(c.Request.Context(), from, to)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"conflicts": conflicts,
		"count":     len(conflicts),
	})
}
