package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	attestation "github.com/wyfcoding/defiwizard/internal/attestation/domain"
	attestinfra "github.com/wyfcoding/defiwizard/internal/attestation/infrastructure"
	catalogapp "github.com/wyfcoding/defiwizard/internal/catalog/application"
	catalog "github.com/wyfcoding/defiwizard/internal/catalog/domain"
	"github.com/wyfcoding/defiwizard/internal/catalog/infrastructure/persistence/memory"
	"github.com/wyfcoding/defiwizard/internal/catalog/infrastructure/persistence/mysql"
	catalogcache "github.com/wyfcoding/defiwizard/internal/catalog/infrastructure/persistence/redis"
	catalog_http "github.com/wyfcoding/defiwizard/internal/catalog/interfaces/http"
	riskapp "github.com/wyfcoding/defiwizard/internal/risk/application"
	risk "github.com/wyfcoding/defiwizard/internal/risk/domain"
	risk_http "github.com/wyfcoding/defiwizard/internal/risk/interfaces/http"
	wizardapp "github.com/wyfcoding/defiwizard/internal/wizard/application"
	wizard "github.com/wyfcoding/defiwizard/internal/wizard/domain"
	"github.com/wyfcoding/defiwizard/internal/wizard/infrastructure/messaging"
	wizard_http "github.com/wyfcoding/defiwizard/internal/wizard/interfaces/http"
	"github.com/wyfcoding/defiwizard/pkg/cache"
	"github.com/wyfcoding/defiwizard/pkg/config"
	"github.com/wyfcoding/defiwizard/pkg/db"
	"github.com/wyfcoding/defiwizard/pkg/logger"
	"github.com/wyfcoding/defiwizard/pkg/metrics"
	"github.com/wyfcoding/defiwizard/pkg/middleware"
	"github.com/wyfcoding/defiwizard/pkg/mq"
	"github.com/wyfcoding/defiwizard/pkg/ratelimit"
)

// closer 退出时按注册逆序释放的资源
type closer struct {
	name string
	fn   func() error
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/wizard/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("load config failed: %v", err))
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("init logger failed: %v", err))
	}
	log := logger.Get().With("service", cfg.ServiceName, "version", cfg.Version)

	// 3. Metrics
	m := metrics.New("wizard")
	if err := m.Register(prometheus.DefaultRegisterer); err != nil {
		panic(fmt.Sprintf("register metrics failed: %v", err))
	}

	var closers []closer
	var pingers []func(context.Context) error

	// 4. Catalog
	pools, holdings, err := buildCatalog(cfg, m, log, &closers, &pingers)
	if err != nil {
		panic(fmt.Sprintf("build catalog failed: %v", err))
	}

	thresholds, err := buildThresholds(cfg.Risk)
	if err != nil {
		panic(fmt.Sprintf("invalid risk thresholds: %v", err))
	}

	// 5. Attestation
	runner := attestation.NewRunner(
		attestinfra.WithTimeout(buildAttestor(cfg.Attestation, log), cfg.Attestation.Timeout),
		attestation.WithLogger(log),
		attestation.WithMetrics(m),
	)

	// 6. Submit hook
	submitter, err := buildSubmitter(cfg, log, &closers)
	if err != nil {
		panic(fmt.Sprintf("build submitter failed: %v", err))
	}

	// 7. Application
	wizardService := wizardapp.NewWizardService(pools, holdings, runner, submitter, thresholds,
		wizardapp.WithLogger(log),
		wizardapp.WithMetrics(m),
		wizardapp.WithSessionTTL(cfg.Wizard.SessionTTL),
	)
	riskService := riskapp.NewRiskQueryService(pools, thresholds, log)
	catalogService := catalogapp.NewCatalogQueryService(pools, holdings)

	// 8. Interfaces
	grpcSrv := grpc.NewServer(
		grpc.MaxConcurrentStreams(uint32(cfg.GRPC.MaxConcurrentStreams)),
		grpc.ChainUnaryInterceptor(
			middleware.GRPCRecoveryInterceptor(),
			middleware.GRPCLoggingInterceptor(),
		),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcSrv)

	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := ratelimit.NewLocalRateLimiter(5 * time.Minute)
	r := gin.New()
	r.Use(
		middleware.GinRecoveryMiddleware(),
		middleware.GinLoggingMiddleware(),
		middleware.GinMetricsMiddleware(m),
		middleware.GinCORSMiddleware(),
	)

	sys := r.Group("/sys")
	{
		sys.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
		sys.GET("/ready", func(c *gin.Context) {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			for _, ping := range pingers {
				if err := ping(ctx); err != nil {
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "NOT_READY", "error": err.Error()})
					return
				}
			}
			c.JSON(http.StatusOK, gin.H{"status": "READY", "active_sessions": wizardService.ActiveSessions()})
		})
	}
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	pp := r.Group("/debug/pprof")
	{
		pp.GET("/", gin.WrapF(pprof.Index))
		pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pp.GET("/profile", gin.WrapF(pprof.Profile))
		pp.GET("/symbol", gin.WrapF(pprof.Symbol))
		pp.GET("/trace", gin.WrapF(pprof.Trace))
	}

	api := r.Group("")
	api.Use(middleware.RateLimitMiddleware(limiter, ratelimit.Limit{
		Rate:   cfg.HTTP.RateLimit,
		Period: time.Second,
		Burst:  cfg.HTTP.RateBurst,
	}))
	wizard_http.NewWizardHandler(wizardService).RegisterRoutes(api)
	risk_http.NewRiskHandler(riskService).RegisterRoutes(api)
	catalog_http.NewCatalogHandler(catalogService).RegisterRoutes(api)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 9. Start
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		log.Info("gRPC server starting", "addr", addr)
		return grpcSrv.Serve(lis)
	})

	g.Go(func() error {
		log.Info("HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return wizardService.Run(ctx, cfg.Wizard.SweepInterval)
	})

	g.Go(func() error {
		limiter.Run(ctx)
		return nil
	})

	// 10. Graceful Shutdown
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down servers...")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown failed", "error", err)
		}
		grpcSrv.GracefulStop()
		if err := runner.Shutdown(shutdownCtx); err != nil {
			log.Warn("attestation runner shutdown incomplete", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "error", err)
	}

	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			log.Error("failed to close resource", "resource", closers[i].name, "error", err)
		}
	}
	log.Info("server stopped")
}

func buildCatalog(cfg *config.Config, m *metrics.Metrics, log *slog.Logger, closers *[]closer, pingers *[]func(context.Context) error) (catalog.PoolRepository, catalog.HoldingRepository, error) {
	seedPools, err := memory.PoolsFromSeeds(cfg.Catalog.Pools)
	if err != nil {
		return nil, nil, err
	}
	seedHoldings, err := memory.HoldingsFromSeeds(cfg.Catalog.Holdings)
	if err != nil {
		return nil, nil, err
	}

	var pools catalog.PoolRepository
	var holdings catalog.HoldingRepository

	switch cfg.Catalog.Driver {
	case "mysql":
		database, err := db.Init(db.Config{
			Driver:             cfg.Database.Driver,
			DSN:                cfg.Database.DSN,
			MaxOpenConns:       cfg.Database.MaxOpenConns,
			MaxIdleConns:       cfg.Database.MaxIdleConns,
			ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
			LogEnabled:         cfg.Database.LogEnabled,
			SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
		})
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, closer{name: "database", fn: database.Close})
		*pingers = append(*pingers, database.Ping)

		if cfg.Database.AutoMigrate {
			if err := mysql.AutoMigrate(database.DB); err != nil {
				return nil, nil, fmt.Errorf("migrate catalog failed: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := mysql.Seed(ctx, database.DB, seedPools, seedHoldings); err != nil {
				return nil, nil, fmt.Errorf("seed catalog failed: %w", err)
			}
		}
		pools = mysql.NewPoolRepository(database.DB)
		holdings = mysql.NewHoldingRepository(database.DB)
	default:
		pools, err = memory.NewPoolRepository(seedPools)
		if err != nil {
			return nil, nil, err
		}
		holdings = memory.NewHoldingRepository(seedHoldings)
	}

	if cfg.Catalog.Cache {
		rc, err := cache.New(cache.Config{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		*closers = append(*closers, closer{name: "redis", fn: rc.Close})
		*pingers = append(*pingers, rc.Ping)
		pools = catalogcache.NewCachedPoolRepository(pools, rc, cfg.Catalog.CacheTTL, m, log)
	}

	log.Info("catalog ready", "driver", cfg.Catalog.Driver, "cache", cfg.Catalog.Cache, "pools", len(seedPools))
	return pools, holdings, nil
}

func buildThresholds(rc config.RiskConfig) (risk.Thresholds, error) {
	var t risk.Thresholds
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&t.Risky, rc.RiskyThreshold},
		{&t.Moderate, rc.ModerateThreshold},
		{&t.Safe, rc.SafeThreshold},
		{&t.MinHealthFactor, rc.MinHealthFactor},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return t, err
		}
		*f.dst = d
	}
	return t, t.Validate()
}

func buildAttestor(ac config.AttestationConfig, log *slog.Logger) attestation.Attestor {
	if ac.Driver == "remote" {
		log.Info("using remote attestation backend", "endpoint", ac.Endpoint)
		return attestinfra.NewRemoteAttestor(attestinfra.RemoteConfig{
			Endpoint:           ac.Endpoint,
			BreakerMaxFailures: ac.BreakerMaxFailures,
			BreakerOpenTimeout: ac.BreakerOpenTimeout,
		}, log)
	}
	log.Info("using simulated attestation backend", "latency", ac.Latency, "failure_rate", ac.FailureRate)
	return attestinfra.NewSimulatedAttestor(ac.Latency, ac.FailureRate, uint64(time.Now().UnixNano()))
}

func buildSubmitter(cfg *config.Config, log *slog.Logger, closers *[]closer) (wizard.Submitter, error) {
	if cfg.Submit.Driver != "kafka" {
		return messaging.NewLogSubmitter(log), nil
	}
	producer, err := mq.NewProducer(mq.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		WriteTimeout: time.Duration(cfg.Kafka.WriteTimeout) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, closer{name: "kafka", fn: producer.Close})
	return messaging.NewKafkaSubmitter(producer, cfg.Submit.Topic, log), nil
}
