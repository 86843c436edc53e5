package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/parkvoucher/internal/audit"
	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	"github.com/smallbiznis/parkvoucher/internal/auth"
	authdomain "github.com/smallbiznis/parkvoucher/internal/auth/domain"
	"github.com/smallbiznis/parkvoucher/internal/auth/session"
	"github.com/smallbiznis/parkvoucher/internal/cache"
	"github.com/smallbiznis/parkvoucher/internal/clock"
	"github.com/smallbiznis/parkvoucher/internal/config"
	"github.com/smallbiznis/parkvoucher/internal/observability"
	obsmiddleware "github.com/smallbiznis/parkvoucher/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/parkvoucher/internal/observability/metrics"
	obstracing "github.com/smallbiznis/parkvoucher/internal/observability/tracing"
	"github.com/smallbiznis/parkvoucher/internal/ratelimit"
	"github.com/smallbiznis/parkvoucher/internal/report"
	reportdomain "github.com/smallbiznis/parkvoucher/internal/report/domain"
	"github.com/smallbiznis/parkvoucher/internal/voucher"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	auth.Module,
	ratelimit.Module,
	voucher.Module,
	report.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
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
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine     *gin.Engine
	cfg        config.Config
	policy     *config.PolicyHolder
	log        *zap.Logger
	authsvc    authdomain.Service
	sessions   *session.Manager
	voucherSvc voucherdomain.Service
	reportSvc  reportdomain.Service
	auditSvc   auditdomain.Service
	clock      clock.Clock
	location   *time.Location
	qrCache    cache.Cache[string, string]
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Policy     *config.PolicyHolder
	Log        *zap.Logger
	Authsvc    authdomain.Service
	Sessions   *session.Manager
	VoucherSvc voucherdomain.Service
	ReportSvc  reportdomain.Service
	AuditSvc   auditdomain.Service
	Clock      clock.Clock
	Location   *time.Location
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		policy:     p.Policy,
		log:        p.Log.Named("http.server"),
		authsvc:    p.Authsvc,
		sessions:   p.Sessions,
		voucherSvc: p.VoucherSvc,
		reportSvc:  p.ReportSvc,
		auditSvc:   p.AuditSvc,
		clock:      p.Clock,
		location:   p.Location,
		qrCache:    cache.NewTTLCache[string, string](256, 30*time.Minute),
	}

	svc.registerAuthRoutes()
	svc.registerAdminRoutes()
	svc.registerRedeemRoutes()
	svc.registerWebhookRoutes()
	svc.registerUIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) now() time.Time {
	return s.clock.Now().In(s.location)
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/api/admin")

	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/session", s.AdminRequired(), s.Session)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")

	admin.Use(s.AdminRequired())
	admin.Use(s.CSRFRequired())

	admin.GET("/stats", s.GetStats)

	// -------- Vouchers --------
	admin.POST("/voucher", s.CreateVoucher)
	admin.GET("/vouchers", s.ListVouchers)
	admin.GET("/voucher/:id", s.GetVoucher)
	admin.PUT("/voucher/:id", s.UpdateVoucher)
	admin.DELETE("/voucher/:id", s.DisableVoucher)
	admin.POST("/voucher/:id/use", s.UseVoucher)
	admin.POST("/voucher/:id/manual-qr", s.UploadVoucherQR)

	// -------- Usages --------
	admin.GET("/usages", s.ListUsages)
	admin.GET("/usages/export", s.ExportUsages)

	admin.GET("/logs", s.ListAuditLogs)
	admin.GET("/export", s.ExportVouchers)
}

func (s *Server) registerRedeemRoutes() {
	redeem := s.engine.Group("/api/voucher")

	redeem.Use(s.AdminRequired())
	redeem.Use(s.CSRFRequired())

	redeem.GET("/:id", s.GetRedeemVoucher)
	redeem.POST("/:id/display", s.DisplayVoucher)
	redeem.POST("/:id/confirm", s.ConfirmVoucher)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/webhook/use", s.WebhookUse)
}
