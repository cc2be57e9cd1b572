// Package server exposes the billing engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/kintailabs/kintai/internal/billing/domain"
	"github.com/kintailabs/kintai/internal/config"
	invoicedomain "github.com/kintailabs/kintai/internal/invoice/domain"
	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
	prorationdomain "github.com/kintailabs/kintai/internal/proration/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	pricingSvc   pricingdomain.Service
	prorationSvc prorationdomain.Service
	billingSvc   billingdomain.Service
	invoiceSvc   invoicedomain.Service
}

type ServerParams struct {
	fx.In

	Engine       *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	PricingSvc   pricingdomain.Service
	ProrationSvc prorationdomain.Service
	BillingSvc   billingdomain.Service
	InvoiceSvc   invoicedomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Engine,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("server"),
		pricingSvc:   p.PricingSvc,
		prorationSvc: p.ProrationSvc,
		billingSvc:   p.BillingSvc,
		invoiceSvc:   p.InvoiceSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(TenantContext())

	pricing := api.Group("/pricing")
	{
		pricing.GET("/tiers", s.ListTiers)
		pricing.PUT("/tiers", s.ReplaceTiers)
		pricing.POST("/tiers/validate", s.ValidateTiers)
		pricing.GET("/preview", s.PreviewPrice)
	}

	proration := api.Group("/proration")
	{
		proration.POST("/events", s.RecordProration)
		proration.GET("/events", s.ListProration)
	}

	api.GET("/billing/preview", s.PreviewBilling)

	invoices := api.Group("/invoices")
	{
		invoices.POST("", s.GenerateInvoice)
		invoices.POST("/regenerate", s.RegenerateInvoice)
		invoices.GET("", s.ListInvoices)
		invoices.GET("/:id", s.GetInvoice)
		invoices.POST("/:id/send", s.MarkInvoiceSent)
		invoices.POST("/:id/pay", s.MarkInvoicePaid)
		invoices.GET("/:id/projection", s.GetInvoiceProjection)
	}
}
