package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/affina/internal/affiliate"
	affdomain "github.com/smallbiznis/affina/internal/affiliate/domain"
	"github.com/smallbiznis/affina/internal/clock"
	"github.com/smallbiznis/affina/internal/commission"
	comdomain "github.com/smallbiznis/affina/internal/commission/domain"
	"github.com/smallbiznis/affina/internal/config"
	"github.com/smallbiznis/affina/internal/credit"
	creditdomain "github.com/smallbiznis/affina/internal/credit/domain"
	"github.com/smallbiznis/affina/internal/events"
	"github.com/smallbiznis/affina/internal/migration"
	"github.com/smallbiznis/affina/internal/network"
	networkdomain "github.com/smallbiznis/affina/internal/network/domain"
	"github.com/smallbiznis/affina/internal/observability"
	obsmiddleware "github.com/smallbiznis/affina/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/affina/internal/observability/metrics"
	obstracing "github.com/smallbiznis/affina/internal/observability/tracing"
	"github.com/smallbiznis/affina/internal/providers/notify"
	"github.com/smallbiznis/affina/internal/ratelimit"
	"github.com/smallbiznis/affina/internal/scheduler"
	"github.com/smallbiznis/affina/internal/tier"
	tierdomain "github.com/smallbiznis/affina/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	events.Module,
	notify.Module,
	ratelimit.Module,
	migration.Module,
	tier.Module,
	credit.Module,
	network.Module,
	affiliate.Module,
	commission.Module,
	scheduler.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, metrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config, metrics *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(log, obsCfg, metrics)
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
	engine        *gin.Engine
	cfg           config.Config
	genID         *snowflake.Node
	creditSvc     creditdomain.Service
	tierSvc       tierdomain.Service
	affiliateSvc  affdomain.Service
	networkSvc    networkdomain.Service
	commissionSvc comdomain.Service
	debitLimiter  *ratelimit.DebitLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	GenID         *snowflake.Node
	CreditSvc     creditdomain.Service
	TierSvc       tierdomain.Service
	AffiliateSvc  affdomain.Service
	NetworkSvc    networkdomain.Service
	CommissionSvc comdomain.Service
	DebitLimiter  *ratelimit.DebitLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		genID:         p.GenID,
		creditSvc:     p.CreditSvc,
		tierSvc:       p.TierSvc,
		affiliateSvc:  p.AffiliateSvc,
		networkSvc:    p.NetworkSvc,
		commissionSvc: p.CommissionSvc,
		debitLimiter:  p.DebitLimiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	balances := v1.Group("/balances")
	balances.POST("", s.createBalance)
	balances.GET("/:id", s.getBalance)
	balances.POST("/:id/debit", s.debitBalance)
	balances.POST("/:id/grant", s.grantBalance)
	balances.GET("/:id/sufficient", s.checkBalance)
	balances.GET("/:id/journal", s.getJournal)

	affiliates := v1.Group("/affiliates")
	affiliates.POST("", s.createAffiliate)
	affiliates.GET("", s.listAffiliates)
	affiliates.GET("/leaderboard", s.affiliateLeaderboard)
	affiliates.GET("/code/:code", s.getAffiliateByCode)
	affiliates.GET("/:id", s.getAffiliate)
	affiliates.PATCH("/:id/status", s.updateAffiliateStatus)
	affiliates.POST("/:id/recompute-tier", s.recomputeAffiliateTier)
	affiliates.GET("/:id/stats", s.affiliateStats)
	affiliates.GET("/:id/upline", s.getUpline)
	affiliates.GET("/:id/downline", s.getDownline)
	affiliates.GET("/:id/network", s.networkStats)
	affiliates.GET("/:id/commissions/summary", s.commissionSummary)

	customers := v1.Group("/customers")
	customers.POST("/links", s.linkCustomer)

	tiers := v1.Group("/tiers")
	tiers.GET("", s.listTiers)
	tiers.POST("", s.createTier)

	commissions := v1.Group("/commissions")
	commissions.GET("", s.listCommissions)
	commissions.GET("/:id", s.getCommission)
	commissions.POST("/:id/approve", s.approveCommission)

	orders := v1.Group("/orders")
	orders.POST("/completed", s.orderCompleted)
	orders.POST("/refunded", s.orderRefunded)
}
