package handler

import (
	"net/http"

	"hemodialysis-scheduler/internal/service"
	"hemodialysis-scheduler/pkg/utils"

	"github.com/gin-gonic/gin"
)

type PatientHandler struct {
	scheduleService  *service.ScheduleService
	equipmentService *service.EquipmentService
}

func NewPatientHandler(scheduleService *service.ScheduleService, equipmentService *service.EquipmentService) *PatientHandler {
	return &PatientHandler{
		scheduleService:  scheduleService,
		equipmentService: equipmentService,
	}
}

// ScheduleRequest represents the request body for generating future sessions
type ScheduleRequest struct {
	Cycle       string `json:"cycle" binding:"required"`
	AnchorDate  string `json:"anchor_date" binding:"required"`
	SlotID      *uint  `json:"slot_id"`
	HorizonDays int    `json:"horizon_days" binding:"required"`
}

// GenerateSchedule creates the patient's pre-scheduled sessions from a cycle
func (h *PatientHandler) GenerateSchedule(c *gin.Context) {
	patientID, err := parseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	anchor, err := parseDate("anchor_date", req.AnchorDate)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	created, err := h.scheduleService.GenerateFutureSessions(c.Request.Context(), service.ScheduleRequest{
		PatientID:   patientID,
		Cycle:       req.Cycle,
		AnchorDate:  anchor,
		SlotID:      req.SlotID,
		HorizonDays: req.HorizonDays,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"sessions": created,
		"count":    len(created),
	})
}

// GetEquipment returns the patient's reuse counters and alert bands
func (h *PatientHandler) GetEquipment(c *gin.Context) {
	patientID, err := parseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	usage, err := h.equipmentService.Usage(c.Request.Context(), patientID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, usage)
}
