// Command sfsync-server runs the inventory sync service: control surface over gRPC and HTTP,
// scheduled sync rounds and the telemetry stream.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/storefront-sync/internal/clock"
	"github.com/and161185/storefront-sync/internal/config"
	"github.com/and161185/storefront-sync/internal/crypto"
	"github.com/and161185/storefront-sync/internal/limiter"
	"github.com/and161185/storefront-sync/internal/migrate"
	"github.com/and161185/storefront-sync/internal/platform"
	"github.com/and161185/storefront-sync/internal/pricing"
	"github.com/and161185/storefront-sync/internal/reconcile"
	"github.com/and161185/storefront-sync/internal/repository/postgres"
	grpcserver "github.com/and161185/storefront-sync/internal/server/grpc"
	httpserver "github.com/and161185/storefront-sync/internal/server/http"
	"github.com/and161185/storefront-sync/internal/service"
	"github.com/and161185/storefront-sync/internal/telemetry"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves until SIGINT/SIGTERM.
func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	v := config.NewViper()

	// Flags override the environment for listen addresses.
	grpcAddr := flag.String("grpc-addr", v.GetString("grpc_addr"), "gRPC listen address")
	httpAddr := flag.String("http-addr", v.GetString("http_addr"), "HTTP listen address")
	maxConns := flag.Int("max-conns", 10, "PostgreSQL pool size")
	flag.Parse()
	v.Set("grpc_addr", *grpcAddr)
	v.Set("http_addr", *httpAddr)

	cfg, err := config.Load(v)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger, _ := zap.NewProduction()
	if cfg.Debug {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("grpcAddr", cfg.GRPCAddr),
		zap.String("httpAddr", cfg.HTTPAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	if ver, err := migrate.Version(ctx, cfg.DatabaseDSN); err == nil {
		logger.Info("schema ready", zap.Int64("version", ver))
	}

	db, err := postgres.New(ctx, cfg.DatabaseDSN, int32(*maxConns))
	if err != nil {
		logger.Fatal("postgres", zap.Error(err))
	}
	defer db.Close()

	vault, err := crypto.NewVault([]byte(cfg.VaultKey))
	if err != nil {
		logger.Fatal("vault", zap.Error(err))
	}

	// Repositories
	accounts := postgres.NewAccountRepo(db)
	catalog := postgres.NewCatalogRepo(db)
	mirror := postgres.NewMirrorRepo(db)
	publisher := postgres.NewNotifyPublisher(db)

	// Locks: in-process first, then a Postgres lease so replicas exclude each other.
	lock := limiter.Chain{limiter.NewKeyLock()}
	if pool, ok := db.Raw(); ok {
		lock = append(lock, limiter.NewPG(pool, cfg.StaleSyncAfter))
	}

	// Telemetry
	hub := telemetry.NewHub(logger)
	defer func() { _ = hub.Close() }()
	metrics := telemetry.NewMetrics()
	sink := telemetry.Fanout{hub, metrics, telemetry.LogSink{Log: logger}}
	metrics.Gauge("ws_sessions", "Open websocket sessions.", hub.Sessions)

	// External platform
	pc := platform.NewClient(platform.Config{
		BaseURL:   cfg.CommunityBaseURL,
		AppID:     cfg.AppID,
		ContextID: cfg.ContextID,
		Timeout:   cfg.HTTPTimeout,
	}, nil, logger)
	validator := platform.NewValidator(pc)
	fetcher := platform.NewFetcher(pc, platform.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	})

	// Pricing: one cache for the process, one pacer per run.
	clk := clock.System{}
	cache := pricing.NewCache(cfg.PriceCacheTTL, clk)
	metrics.Gauge("price_cache_entries", "Cached price quotes, expired ones included.", cache.Len)
	market := pricing.NewMarketClient(cfg.MarketBaseURL, cfg.MarketAPIKey, cfg.AppID, cfg.HTTPTimeout, nil)
	resolvers := func() service.PriceResolver {
		return pricing.NewResolver(cache, market, limiter.NewPacer(cfg.PricePacing, clk), pricing.Options{
			Markup:     cfg.PriceMarkup,
			RetryDelay: cfg.PriceRetryDelay,
			Rates:      cfg.CurrencyRates,
			Clock:      clk,
			Logger:     logger,
			Observer:   sink,
		})
	}

	rcfg := reconcile.DefaultConfig()
	rcfg.BatchSize = cfg.BatchSize
	rcfg.WordMinLen = cfg.WordMinLen
	rcfg.UnmatchedWarnRatio = cfg.UnmatchedWarnRate
	reconciler := reconcile.New(catalog, rcfg, logger)

	// Services
	syncSvc := service.NewSyncService(service.SyncDeps{
		Accounts:   accounts,
		Catalog:    catalog,
		Mirror:     mirror,
		Publisher:  publisher,
		Vault:      vault,
		Access:     validator,
		Inventory:  fetcher,
		Pricing:    resolvers,
		Reconciler: reconciler,
		Lock:       lock,
		Sink:       sink,
		Clock:      clk,
		Log:        logger,
	}, service.SyncOptions{BatchSize: cfg.BatchSize, StaleAfter: cfg.StaleSyncAfter})
	dispatcher := service.NewDispatcher(accounts, mirror, vault, validator, syncSvc, lock, logger)
	scheduler := service.NewScheduler(accounts, syncSvc, cfg.SyncInterval, cfg.SyncConcurrency, logger)
	auth := service.NewOperatorAuth([]byte(cfg.JWTKey))

	// gRPC server with interceptors
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			grpcserver.RecoverUnary(logger),
			grpcserver.LoggingUnary(logger),
			grpcserver.AuthUnary(auth, "/grpc.health.v1.Health/", "/grpc.reflection."),
		),
	}
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Fatal("failed to load TLS cert/key", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	} else {
		logger.Warn("gRPC without TLS")
	}
	gs := grpc.NewServer(opts...)
	grpcserver.RegisterControlServer(gs, grpcserver.New(dispatcher, logger))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	if cfg.Dev {
		reflection.Register(gs)
	}

	hsrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpserver.NewRouter(httpserver.Deps{
			Dispatcher: dispatcher,
			Auth:       auth,
			Hub:        hub,
			Metrics:    metrics.Handler(),
			Log:        logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		return gs.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		t := time.NewTicker(cfg.PriceCacheTTL)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if n := cache.Prune(); n > 0 {
					logger.Debug("pruned price cache", zap.Int("entries", n), zap.Int("remaining", cache.Len()))
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		hs.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hsrv.Shutdown(shutdownCtx)

		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			gs.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
