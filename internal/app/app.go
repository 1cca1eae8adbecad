package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/a2sh3r/fundsledger/internal/cache"
	"github.com/a2sh3r/fundsledger/internal/config"
	"github.com/a2sh3r/fundsledger/internal/database"
	"github.com/a2sh3r/fundsledger/internal/events"
	"github.com/a2sh3r/fundsledger/internal/handlers"
	"github.com/a2sh3r/fundsledger/internal/locker"
	"github.com/a2sh3r/fundsledger/internal/logger"
	"github.com/a2sh3r/fundsledger/internal/metrics"
	"github.com/a2sh3r/fundsledger/internal/payout"
	"github.com/a2sh3r/fundsledger/internal/repository"
	"github.com/a2sh3r/fundsledger/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockPrefix = "fundsledger:lock:"

type App struct {
	server    *http.Server
	db        *sql.DB
	redis     redis.UniversalClient
	publisher events.Publisher
	poller    *service.SettlementPoller

	stopPoller context.CancelFunc
	wg         sync.WaitGroup
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.closeResources()
		}
	}()

	balanceRepo, withdrawalRepo, err := a.initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	balanceCache, keyLocker, err := a.initRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.KafkaBrokers, m)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka producer: %w", err)
		}
		a.publisher = producer
		logger.Log.Info("publishing withdrawal events to kafka", zap.Strings("brokers", cfg.KafkaBrokers))
	} else {
		a.publisher = events.NopPublisher{}
	}

	if cfg.SecretKey == "" {
		logger.Log.Warn("no webhook secret configured, payout webhooks will be rejected")
	}

	payoutClient := payout.NewClient(cfg.PayoutSystemAddress)
	ledgerService := service.NewLedgerService(balanceRepo, balanceCache, m)
	withdrawalService := service.NewWithdrawalService(withdrawalRepo, ledgerService, payoutClient, keyLocker, a.publisher, m, service.WithdrawalConfig{
		MinAmount:   cfg.WithdrawalMinAmount,
		MaxAmount:   cfg.WithdrawalMaxAmount,
		EventsTopic: cfg.WithdrawalEventsTopic,
	})
	a.poller = service.NewSettlementPoller(withdrawalRepo, withdrawalService, payoutClient, cfg.SettlementPoll)

	r := handlers.NewRouter(handlers.NewHandler(ledgerService, withdrawalService), handlers.RouterConfig{
		SecretKey:      cfg.SecretKey,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Metrics:        m,
		Registry:       registry,
	})

	a.server = &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ok = true
	return a, nil
}

func (a *App) initStorage(ctx context.Context, cfg *config.Config) (repository.BalanceRepository, repository.WithdrawalRepository, error) {
	if cfg.DatabaseURI == "" {
		logger.Log.Warn("no database configured, keeping balances and withdrawals in memory")
		return repository.NewMemoryBalanceRepository(), repository.NewMemoryWithdrawalRepository(), nil
	}

	db, err := database.InitDB(ctx, cfg)
	if err != nil {
		logger.Log.Error("database connection failed", zap.Error(err))
		return nil, nil, err
	}
	a.db = db
	return repository.NewBalanceRepository(db), repository.NewWithdrawalRepository(db), nil
}

func (a *App) initRedis(ctx context.Context, cfg *config.Config) (cache.BalanceCache, locker.Locker, error) {
	if cfg.RedisAddress == "" {
		return cache.NewMemoryBalanceCache(cfg.BalanceCacheTTL), locker.NewKeyedMutex(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	a.redis = client

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Log.Info("using redis for balance cache and withdrawal locks", zap.String("address", cfg.RedisAddress))
	return cache.NewRedisBalanceCache(client, cfg.BalanceCacheTTL), locker.NewRedisLocker(client, lockPrefix, locker.DefaultOptions()), nil
}

// Run starts the HTTP server and the settlement poller. The poller stops
// when ctx is done or on Shutdown.
func (a *App) Run(ctx context.Context) error {
	pollerCtx, cancel := context.WithCancel(ctx)
	a.stopPoller = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.poller.Run(pollerCtx)
	}()

	go func() {
		logger.Log.Info("starting server", zap.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("server failed to start", zap.Error(err))
		}
	}()
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	logger.Log.Info("shutting down server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("server shutdown failed", zap.Error(err))
		return err
	}

	logger.Log.Info("stopping settlement poller...")
	if a.stopPoller != nil {
		a.stopPoller()
	}
	a.wg.Wait()

	return a.closeResources()
}

func (a *App) closeResources() error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			logger.Log.Error("failed to close event publisher", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Log.Error("failed to close redis client", zap.Error(err))
			errs = append(errs, err)
		}
	}
	if a.db != nil {
		logger.Log.Info("closing database connection...")
		if err := a.db.Close(); err != nil {
			logger.Log.Error("failed to close database", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
