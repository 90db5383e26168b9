package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/smallbiznis/promptly/internal/account/domain"
	"github.com/smallbiznis/promptly/internal/auth/cronsecret"
	authdomain "github.com/smallbiznis/promptly/internal/auth/domain"
	"github.com/smallbiznis/promptly/internal/authorization"
	"github.com/smallbiznis/promptly/internal/cache"
	"github.com/smallbiznis/promptly/internal/config"
	creditdomain "github.com/smallbiznis/promptly/internal/credit/domain"
	"github.com/smallbiznis/promptly/internal/generation"
	"github.com/smallbiznis/promptly/internal/observability"
	obsmiddleware "github.com/smallbiznis/promptly/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/promptly/internal/observability/metrics"
	obstracing "github.com/smallbiznis/promptly/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/promptly/internal/payment/domain"
	"github.com/smallbiznis/promptly/internal/ratelimit"
	"github.com/smallbiznis/promptly/internal/scheduler"
	subscriptiondomain "github.com/smallbiznis/promptly/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/promptly/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
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
			log.Info("http server listening", zap.String("addr", addr))
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	verifier    authdomain.Verifier
	cronAuth    *cronsecret.Checker
	authzSvc    authorization.Service
	accountSvc  accountdomain.Service
	creditSvc   creditdomain.Service
	usageSvc    usagedomain.Service
	paymentSvc  paymentdomain.Service
	paymentRepo paymentdomain.Repository
	checkoutSvc paymentdomain.CheckoutService
	subsSvc     subscriptiondomain.Service
	generator   generation.Generator
	limiter     *ratelimit.GenerateLimiter
	identities  cache.IdentityCache
	obsMetrics  *obsmetrics.Metrics
	scheduler   *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	Verifier    authdomain.Verifier
	CronAuth    *cronsecret.Checker
	AuthzSvc    authorization.Service
	AccountSvc  accountdomain.Service
	CreditSvc   creditdomain.Service
	UsageSvc    usagedomain.Service
	PaymentSvc  paymentdomain.Service
	PaymentRepo paymentdomain.Repository
	CheckoutSvc paymentdomain.CheckoutService
	SubsSvc     subscriptiondomain.Service
	Generator   generation.Generator
	Limiter     *ratelimit.GenerateLimiter `optional:"true"`
	Identities  cache.IdentityCache        `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics        `optional:"true"`
	Scheduler   *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	identities := p.Identities
	if identities == nil {
		identities = cache.NewIdentityCache()
	}
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("http.server"),
		verifier:    p.Verifier,
		cronAuth:    p.CronAuth,
		authzSvc:    p.AuthzSvc,
		accountSvc:  p.AccountSvc,
		creditSvc:   p.CreditSvc,
		usageSvc:    p.UsageSvc,
		paymentSvc:  p.PaymentSvc,
		paymentRepo: p.PaymentRepo,
		checkoutSvc: p.CheckoutSvc,
		subsSvc:     p.SubsSvc,
		generator:   p.Generator,
		limiter:     p.Limiter,
		identities:  identities,
		obsMetrics:  p.ObsMetrics,
		scheduler:   p.Scheduler,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()
	svc.registerInternalRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AccountRequired())

	api.GET("/me", s.Me)
	api.GET("/me/balance", s.MyBalance)
	api.GET("/me/subscriptions", s.MySubscriptions)
	api.GET("/me/payments", s.MyPayments)
	api.POST("/prompts/generate", s.GenerateRateLimit(), s.GeneratePrompt)
	api.POST("/billing/checkout", s.CreateCheckout)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal", s.CronSecretRequired())

	internal.POST("/cron/reset-credits", s.ResetDueCredits)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.AccountRequired())

	admin.POST("/accounts/:id/reset", s.authorizeAction(authorization.ObjectCredits, authorization.ActionCreditsReset), s.AdminResetAccount)
	admin.GET("/accounts/:id/balance", s.authorizeAction(authorization.ObjectCredits, authorization.ActionCreditsView), s.AdminAccountBalance)
}
