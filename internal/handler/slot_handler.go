package handler

import (
	"net/http"
	"time"

	"hemodialysis-scheduler/internal/service"
	"hemodialysis-scheduler/pkg/utils"

	"github.com/gin-gonic/gin"
)

type SlotHandler struct {
	slotService     *service.SlotService
	scheduleService *service.ScheduleService
}

func NewSlotHandler(slotService *service.SlotService, scheduleService *service.ScheduleService) *SlotHandler {
	return &SlotHandler{
		slotService:     slotService,
		scheduleService: scheduleService,
	}
}

// ListSlots returns the active slots, or all with ?all=true
func (h *SlotHandler) ListSlots(c *gin.Context) {
	slots, err := h.slotService.ListSlots(c.Request.Context(), c.Query("all") == "true")
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"slots": slots,
		"count": len(slots),
	})
}

// GetSlot returns a single slot
func (h *SlotHandler) GetSlot(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	slot, err := h.slotService.GetSlot(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, slot)
}

// CreateSlot adds a slot (admin only)
func (h *SlotHandler) CreateSlot(c *gin.Context) {
	var req service.SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	slot, err := h.slotService.CreateSlot(c.Request.Context(), req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.CreatedResponse(c, slot)
}

// UpdateSlot replaces a slot's configuration (admin only)
func (h *SlotHandler) UpdateSlot(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	var req service.SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	slot, err := h.slotService.UpdateSlot(c.Request.Context(), id, req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, slot)
}

// GetBeds returns the bed grid of a slot for ?date=, defaulting to today
func (h *SlotHandler) GetBeds(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	date := time.Now().UTC()
	if v := c.Query("date"); v != "" {
		if date, err = parseDate("date", v); err != nil {
			utils.HandleError(c, err)
			return
		}
	}

	occ, err := h.scheduleService.Occupancy(c.Request.Context(), id, date)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessResponse(c, occ)
}
