package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/licensia/internal/billing"
	billingdomain "github.com/smallbiznis/licensia/internal/billing/domain"
	"github.com/smallbiznis/licensia/internal/config"
	"github.com/smallbiznis/licensia/internal/entitlement"
	entitlementdomain "github.com/smallbiznis/licensia/internal/entitlement/domain"
	"github.com/smallbiznis/licensia/internal/ledger"
	ledgerdomain "github.com/smallbiznis/licensia/internal/ledger/domain"
	"github.com/smallbiznis/licensia/internal/logger"
	"github.com/smallbiznis/licensia/internal/observability"
	obsmetrics "github.com/smallbiznis/licensia/internal/observability/metrics"
	obstracing "github.com/smallbiznis/licensia/internal/observability/tracing"
	"github.com/smallbiznis/licensia/internal/party"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	"github.com/smallbiznis/licensia/internal/quota"
	"github.com/smallbiznis/licensia/internal/ratelimit"
	"github.com/smallbiznis/licensia/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/licensia/internal/subscription/domain"
	"github.com/smallbiznis/licensia/internal/tier"
	tierdomain "github.com/smallbiznis/licensia/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	tier.Module,
	quota.Module,
	party.Module,
	entitlement.Module,
	subscription.Module,
	ledger.Module,
	billing.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log, logger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", obsmetrics.Handler(registry))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, registry *prometheus.Registry) *gin.Engine {
	return NewEngine(log, obsCfg, httpMetrics, registry)
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
	engine *gin.Engine
	cfg    config.Config

	tierSvc         tierdomain.Service
	partySvc        partydomain.Service
	entitlementSvc  entitlementdomain.Service
	subscriptionSvc subscriptiondomain.Service
	ledgerSvc       ledgerdomain.Service
	billingSvc      billingdomain.Service
}

type ServerParams struct {
	fx.In

	Gin *gin.Engine
	Cfg config.Config

	TierSvc         tierdomain.Service
	PartySvc        partydomain.Service
	EntitlementSvc  entitlementdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	LedgerSvc       ledgerdomain.Service
	BillingSvc      billingdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		tierSvc:         p.TierSvc,
		partySvc:        p.PartySvc,
		entitlementSvc:  p.EntitlementSvc,
		subscriptionSvc: p.SubscriptionSvc,
		ledgerSvc:       p.LedgerSvc,
		billingSvc:      p.BillingSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.GET("/tiers", s.ListTiers)

	// -------- Parties --------
	v1.POST("/parties", s.CreateParty)
	v1.GET("/parties/:id", s.GetParty)
	v1.GET("/parties/:id/ancestors", s.GetPartyAncestors)
	v1.GET("/parties/:id/children", s.GetPartyChildren)
	v1.PUT("/parties/:id/commission-rate", s.SetCommissionRate)
	v1.POST("/parties/:id/tier", s.ChangePartyTier)
	v1.POST("/parties/:id/suspend", s.SuspendParty)
	v1.DELETE("/parties/:id", s.DeleteParty)

	// -------- Entitlements --------
	v1.GET("/parties/:id/entitlements", s.GetEntitlements)
	v1.GET("/parties/:id/entitlements/overrides", s.ListEntitlementOverrides)
	v1.PUT("/parties/:id/entitlements/:feature", s.SetEntitlementOverride)
	v1.DELETE("/parties/:id/entitlements/:feature", s.RemoveEntitlementOverride)

	// -------- Subscriptions --------
	v1.GET("/parties/:id/subscription", s.GetSubscription)
	v1.POST("/parties/:id/subscription/cancel", s.CancelSubscription)

	// -------- Ledger --------
	v1.GET("/parties/:id/ledger", s.GetLedgerEntries)
	v1.GET("/parties/:id/ledger/summary", s.GetLedgerSummary)
	v1.POST("/transactions/:source/reverse", s.ReverseTransaction)

	// -------- Payment Webhooks --------
	v1.POST("/webhooks/payment", s.HandlePaymentWebhook)
}
