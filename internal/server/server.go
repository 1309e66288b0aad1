package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/invoicer/internal/client"
	clientdomain "github.com/smallbiznis/invoicer/internal/client/domain"
	"github.com/smallbiznis/invoicer/internal/config"
	"github.com/smallbiznis/invoicer/internal/invoice"
	invoicedomain "github.com/smallbiznis/invoicer/internal/invoice/domain"
	"github.com/smallbiznis/invoicer/internal/observability"
	obsmiddleware "github.com/smallbiznis/invoicer/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/invoicer/internal/observability/metrics"
	obstracing "github.com/smallbiznis/invoicer/internal/observability/tracing"
	"github.com/smallbiznis/invoicer/internal/providers/pdf"
	"github.com/smallbiznis/invoicer/internal/ratelimit"
	"github.com/smallbiznis/invoicer/internal/settings"
	settingsdomain "github.com/smallbiznis/invoicer/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	settings.Module,
	client.Module,
	invoice.Module,
	pdf.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
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

func run(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	invoiceSvc   invoicedomain.Service
	clientSvc    clientdomain.Service
	settingsSvc  settingsdomain.Service
	pdf          pdf.Provider
	labels       *config.LabelsHolder
	writeLimiter *ratelimit.WriteLimiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	InvoiceSvc   invoicedomain.Service
	ClientSvc    clientdomain.Service
	SettingsSvc  settingsdomain.Service
	PDF          pdf.Provider
	Labels       *config.LabelsHolder
	WriteLimiter *ratelimit.WriteLimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		invoiceSvc:   p.InvoiceSvc,
		clientSvc:    p.ClientSvc,
		settingsSvc:  p.SettingsSvc,
		pdf:          p.PDF,
		labels:       p.Labels,
		writeLimiter: p.WriteLimiter,
		obsMetrics:   p.ObsMetrics,
	}
	if svc.labels == nil {
		svc.labels = config.NewStaticLabelsHolder(config.DefaultLabels())
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	write := s.WriteRateLimit()

	// -------- Invoices --------
	api.GET("/invoices/next-number", s.NextInvoiceNumber)
	api.GET("/invoices", s.ListInvoices)
	api.POST("/invoices", write, s.CreateInvoice)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PUT("/invoices/:id", write, s.UpdateInvoice)
	api.DELETE("/invoices/:id", write, s.DeleteInvoice)
	api.GET("/invoices/:id/pdf", s.DownloadInvoicePDF)

	// -------- Clients --------
	api.GET("/clients", s.ListClients)
	api.POST("/clients", write, s.CreateClient)
	api.GET("/clients/:id", s.GetClientByID)
	api.PUT("/clients/:id", write, s.UpdateClient)
	api.POST("/clients/:id/archive", write, s.ArchiveClient)
	api.POST("/clients/:id/restore", write, s.RestoreClient)

	// -------- Settings --------
	api.GET("/settings", s.GetSettings)
	api.PUT("/settings", write, s.UpdateSettings)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
