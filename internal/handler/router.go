package handler

import (
	"hemodialysis-scheduler/internal/config"
	"hemodialysis-scheduler/internal/middleware"
	"hemodialysis-scheduler/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers the router mounts
type Handlers struct {
	Session *SessionHandler
	Slot    *SlotHandler
	Patient *PatientHandler
}

// SetupRouter builds the gin engine with middleware and routes
func SetupRouter(cfg *config.Config, h Handlers, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(log), gin.Recovery())

	// Apply CORS middleware
	r.Use(middleware.CORS(cfg))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		utils.SuccessResponse(c, gin.H{
			"status":  "healthy",
			"service": "hemodialysis-scheduler",
		})
	})

	api := r.Group("/")
	api.Use(middleware.AuthMiddleware())
	{
		api.GET("/cycles/preview", PreviewCycle)

		api.GET("/slots", h.Slot.ListSlots)
		api.GET("/slots/:id", h.Slot.GetSlot)
		api.GET("/slots/:id/beds", h.Slot.GetBeds)
		api.POST("/slots", middleware.RequireAdmin(), h.Slot.CreateSlot)
		api.PUT("/slots/:id", middleware.RequireAdmin(), h.Slot.UpdateSlot)

		api.GET("/sessions", h.Session.ListSessions)
		api.GET("/sessions/conflicts", h.Session.GetConflicts)
		api.POST("/sessions", h.Session.CreateSession)
		api.GET("/sessions/:id", h.Session.GetSession)
		api.PATCH("/sessions/:id", h.Session.UpdateSession)
		api.POST("/sessions/:id/activate", h.Session.ActivateSession)
		api.POST("/sessions/:id/missed", h.Session.MarkMissed)
		api.POST("/sessions/:id/discharge", middleware.RequireAdmin(), h.Session.DischargeSession)

		api.POST("/patients/:id/schedule", h.Patient.GenerateSchedule)
		api.GET("/patients/:id/equipment", h.Patient.GetEquipment)
	}

	return r
}
