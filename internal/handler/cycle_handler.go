package handler

import (
	"strconv"

	"hemodialysis-scheduler/internal/apperrors"
	"hemodialysis-scheduler/internal/cycle"
	"hemodialysis-scheduler/internal/service"
	"hemodialysis-scheduler/pkg/utils"

	"github.com/gin-gonic/gin"
)

const defaultPreviewHorizon = 28

// PreviewCycle projects the dates a cycle yields after an anchor date
func PreviewCycle(c *gin.Context) {
	pattern, err := cycle.Parse(c.Query("cycle"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	anchor, err := parseDate("anchor", c.Query("anchor"))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	horizon := defaultPreviewHorizon
	if v := c.Query("horizon"); v != "" {
		if horizon, err = strconv.Atoi(v); err != nil || horizon < 1 || horizon > service.MaxHorizonDays {
			utils.HandleError(c, apperrors.Input("horizon", "must be between 1 and %d", service.MaxHorizonDays))
			return
		}
	}

	dates := []string{}
	for d := range pattern.Upcoming(anchor, horizon) {
		dates = append(dates, d.Format(dateLayout))
	}

	resp := gin.H{
		"cycle":   pattern.Descriptor,
		"anchor":  anchor.Format(dateLayout),
		"horizon": horizon,
		"dates":   dates,
	}
	if n, ok := cycle.DaysBetween(pattern.Descriptor); ok {
		resp["days_between"] = n
	} else {
		weekdays := []string{}
		for _, wd := range pattern.WeekdaySet() {
			weekdays = append(weekdays, wd.String())
		}
		resp["weekdays"] = weekdays
	}
	utils.SuccessResponse(c, resp)
}
