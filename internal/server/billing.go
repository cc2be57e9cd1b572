package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func (s *Server) PreviewBilling(c *gin.Context) {
	year, month, err := yearMonthParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	userCount, err := strconv.Atoi(strings.TrimSpace(c.Query("user_count")))
	if err != nil {
		AbortWithError(c, newValidationError("user_count", "invalid_user_count", "user_count must be an integer"))
		return
	}

	resp, err := s.billingSvc.PreviewMonth(c.Request.Context(), year, time.Month(month), userCount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
