package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func yearMonthParams(c *gin.Context) (int, int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(c.Query("year")))
	if err != nil || year < 1 {
		return 0, 0, newValidationError("year", "invalid_year", "year must be a positive integer")
	}

	month, err := strconv.Atoi(strings.TrimSpace(c.Query("month")))
	if err != nil || month < 1 || month > 12 {
		return 0, 0, newValidationError("month", "invalid_month", "month must be 1-12")
	}

	return year, month, nil
}
