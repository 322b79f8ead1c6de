package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/datalake/internal/audit"
	auditdomain "github.com/smallbiznis/datalake/internal/audit/domain"
	"github.com/smallbiznis/datalake/internal/config"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/internal/observability"
	obslogger "github.com/smallbiznis/datalake/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/datalake/internal/observability/metrics"
	obstracing "github.com/smallbiznis/datalake/internal/observability/tracing"
	"github.com/smallbiznis/datalake/internal/providers"
	"github.com/smallbiznis/datalake/internal/providers/pdf"
	"github.com/smallbiznis/datalake/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	audit.Module,
	providers.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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

type Params struct {
	fx.In

	Engine     *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Store      domain.Service
	AuditSvc   auditdomain.Service      `optional:"true"`
	PDF        pdf.Provider             `optional:"true"`
	Limiter    *ratelimit.UploadLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics      `optional:"true"`
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	store      domain.Service
	auditSvc   auditdomain.Service
	pdf        pdf.Provider
	limiter    *ratelimit.UploadLimiter
	obsMetrics *obsmetrics.Metrics
}

func NewServer(p Params) *Server {
	svc := &Server{
		engine:     p.Engine,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		store:      p.Store,
		auditSvc:   p.AuditSvc,
		pdf:        p.PDF,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerFeedRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerFeedRoutes keeps the paths used by the existing upload front end.
func (s *Server) registerFeedRoutes() {
	s.engine.POST("/reset", s.Reset)
	s.engine.POST("/cargar-configuracion", s.UploadRateLimit(feedConfiguration), s.IngestConfigurationUpload)
	s.engine.POST("/cargar-consumo", s.UploadRateLimit(feedConsumption), s.IngestConsumptionUpload)
	s.engine.GET("/consultar-datos", s.Snapshot)
	s.engine.POST("/crear-cliente", s.CreateClientLegacy)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Feeds --------
	api.POST("/ingest/configuration", s.UploadRateLimit(feedConfiguration), s.IngestConfiguration)
	api.POST("/ingest/consumption", s.UploadRateLimit(feedConsumption), s.IngestConsumption)
	api.GET("/snapshot", s.Snapshot)
	api.POST("/reset", s.Reset)

	// -------- Catalog --------
	api.GET("/resources", s.ListResources)
	api.POST("/resources", s.CreateResource)
	api.GET("/resources/:id", s.GetResource)

	api.GET("/categories", s.ListCategories)
	api.POST("/categories", s.CreateCategory)
	api.GET("/categories/:id", s.GetCategory)
	api.POST("/categories/:id/configurations", s.CreateConfiguration)

	api.GET("/configurations", s.ListConfigurations)
	api.GET("/configurations/:id", s.GetConfiguration)
	api.GET("/configurations/:id/category", s.GetConfigurationCategory)

	// -------- Clients --------
	api.GET("/clients", s.ListClients)
	api.POST("/clients", s.CreateClient)
	api.GET("/clients/:taxId", s.GetClient)
	api.POST("/clients/:taxId/instances", s.CreateInstance)
	api.GET("/clients/:taxId/instances/:id", s.GetInstance)
	api.POST("/clients/:taxId/instances/:id/cancel", s.CancelInstance)

	// -------- Invoices --------
	api.POST("/invoices", s.GenerateInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoice)
	api.GET("/invoices/:id/pdf", s.GetInvoicePDF)

	// -------- Reports --------
	api.GET("/reports/sales", s.SalesReport)

	api.GET("/audit-logs", s.ListAuditLogs)
}
