package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
)

func (s *Server) ListTiers(c *gin.Context) {
	resp, err := s.pricingSvc.ListTiers(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReplaceTiers(c *gin.Context) {
	var req pricingdomain.ReplaceTiersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pricingSvc.ReplaceTiers(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ValidateTiers checks a schedule without persisting it, so admin UIs
// can surface violations before a save.
func (s *Server) ValidateTiers(c *gin.Context) {
	var req pricingdomain.ReplaceTiersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tiers := make([]pricingdomain.PricingTier, 0, len(req.Tiers))
	for i, input := range req.Tiers {
		tiers = append(tiers, pricingdomain.PricingTier{
			Name:         strings.TrimSpace(input.Name),
			MinUsers:     input.MinUsers,
			MaxUsers:     input.MaxUsers,
			PricePerUser: input.PricePerUser,
			SortOrder:    i,
		})
	}

	violations := pricingdomain.ValidateTiers(tiers)
	c.JSON(http.StatusOK, gin.H{
		"valid":      len(violations) == 0,
		"violations": violations,
	})
}

func (s *Server) PreviewPrice(c *gin.Context) {
	userCount, err := strconv.Atoi(strings.TrimSpace(c.Query("user_count")))
	if err != nil {
		AbortWithError(c, newValidationError("user_count", "invalid_user_count", "user_count must be an integer"))
		return
	}

	resp, err := s.pricingSvc.Preview(c.Request.Context(), userCount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
