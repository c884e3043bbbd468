package handler

import (
	"strconv"
	"time"

	"hemodialysis-scheduler/internal/apperrors"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

func parseID(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, apperrors.Input(name, "%q is not a valid id", c.Param(name))
	}
	return uint(id), nil
}

func parseDate(field, value string) (time.Time, error) {
	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, apperrors.Input(field, "%q is not a YYYY-MM-DD date", value)
	}
	return d, nil
}

// optionalDate parses a query parameter when present
func optionalDate(c *gin.Context, name string) (*time.Time, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	d, err := parseDate(name, v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// optionalID parses a numeric query parameter when present
func optionalID(c *gin.Context, name string) (*uint, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil, apperrors.Input(name, "%q is not a valid id", v)
	}
	u := uint(id)
	return &u, nil
}
