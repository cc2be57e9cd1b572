package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/kintailabs/kintai/pkg/tenantctx"
	"go.uber.org/zap"
)

const HeaderTenant = "X-Tenant-ID"

// TenantContext resolves the tenant from the request header and
// injects it into the request context. Every /api/v1 route requires it.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if raw == "" {
			AbortWithError(c, ErrMissingTenant)
			return
		}

		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID == 0 {
			AbortWithError(c, ErrMissingTenant)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), int64(tenantID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
