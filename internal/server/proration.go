package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	prorationdomain "github.com/kintailabs/kintai/internal/proration/domain"
)

func (s *Server) RecordProration(c *gin.Context) {
	var req prorationdomain.RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.prorationSvc.Record(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProration(c *gin.Context) {
	year, month, err := yearMonthParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.prorationSvc.ListMonth(c.Request.Context(), year, time.Month(month))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
