package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/kintailabs/kintai/internal/invoice/domain"
)

func (s *Server) GenerateInvoice(c *gin.Context) {
	req, ok := bindGenerateRequest(c)
	if !ok {
		return
	}

	resp, err := s.invoiceSvc.Generate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RegenerateInvoice(c *gin.Context) {
	req, ok := bindGenerateRequest(c)
	if !ok {
		return
	}

	resp, err := s.invoiceSvc.Regenerate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var req invoicedomain.ListRequest

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := invoicedomain.InvoiceStatus(strings.ToUpper(raw))
		switch status {
		case invoicedomain.InvoiceStatusDraft, invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusPaid:
			req.Status = &status
		default:
			AbortWithError(c, newValidationError("status", "invalid_status", "status must be DRAFT, SENT, or PAID"))
			return
		}
	}
	if raw := strings.TrimSpace(c.Query("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("year", "invalid_year", "year must be an integer"))
			return
		}
		req.Year = year
	}
	if raw := strings.TrimSpace(c.Query("month")); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil || month < 1 || month > 12 {
			AbortWithError(c, newValidationError("month", "invalid_month", "month must be 1-12"))
			return
		}
		req.Month = month
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoice(c *gin.Context) {
	resp, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MarkInvoiceSent(c *gin.Context) {
	resp, err := s.invoiceSvc.MarkSent(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	resp, err := s.invoiceSvc.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceProjection(c *gin.Context) {
	resp, err := s.invoiceSvc.Projection(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func bindGenerateRequest(c *gin.Context) (invoicedomain.GenerateRequest, bool) {
	var payload struct {
		BillingMonth string `json:"billing_month"`
		UserCount    int    `json:"user_count"`
		TenantName   string `json:"tenant_name"`
		BillingEmail string `json:"billing_email"`
		Memo         string `json:"memo"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		AbortWithError(c, invalidRequestError())
		return invoicedomain.GenerateRequest{}, false
	}

	billingMonth, err := time.Parse("2006-01", strings.TrimSpace(payload.BillingMonth))
	if err != nil {
		AbortWithError(c, newValidationError("billing_month", "invalid_billing_month", "billing_month must be YYYY-MM"))
		return invoicedomain.GenerateRequest{}, false
	}

	return invoicedomain.GenerateRequest{
		BillingMonth: billingMonth,
		UserCount:    payload.UserCount,
		TenantName:   strings.TrimSpace(payload.TenantName),
		BillingEmail: strings.TrimSpace(payload.BillingEmail),
		Memo:         payload.Memo,
	}, true
}
