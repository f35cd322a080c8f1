package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nimasrn/group-factory/internal/config"
	gateway "github.com/nimasrn/group-factory/internal/gateways"
	"github.com/nimasrn/group-factory/internal/handlers"
	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/internal/processor"
	"github.com/nimasrn/group-factory/internal/repository"
	"github.com/nimasrn/group-factory/internal/services"
	xhttp "github.com/nimasrn/group-factory/pkg/http"
	"github.com/nimasrn/group-factory/pkg/logger"
	"github.com/nimasrn/group-factory/pkg/pg"
	"github.com/nimasrn/group-factory/pkg/prom"
	"github.com/nimasrn/group-factory/pkg/redis"
	"github.com/nimasrn/group-factory/pkg/worker"
	"github.com/shopspring/decimal"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// memoryBridge selects the in-process platform instead of a bridge.
const memoryBridge = "memory"

func main() {
	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	logger.Info("starting api", "version", version, "commit", commit, "date", date, "env", cfg.AppEnv)

	hostname, _ := os.Hostname()
	if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed creating metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.PromListenAddr, "/metrics")

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:         cfg.PostgresReadUser,
		Host:         cfg.PostgresReadHost,
		Port:         cfg.PostgresReadPort,
		Password:     cfg.PostgresReadPassword,
		Database:     cfg.PostgresReadDatabase,
		MaxOpenConns: cfg.PostgresMaxOpenConns,
	}
	writeConf := pg.Config{
		User:         cfg.PostgresWriteUser,
		Host:         cfg.PostgresWriteHost,
		Port:         cfg.PostgresWritePort,
		Password:     cfg.PostgresWritePassword,
		Database:     cfg.PostgresWriteDatabase,
		MaxOpenConns: cfg.PostgresMaxOpenConns,
	}

	db, err := pg.CreateReadWrite(readConf, writeConf, cfg.AppEnv == "dev")
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", cfg.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{cfg.RedisAddr},
		ClientName: "default",
		DB:         cfg.RedisDatabase,
		Username:   cfg.RedisUsername,
		Password:   cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	defaultPrice, err := decimal.NewFromString(cfg.DefaultPricePerHundred)
	if err != nil {
		logger.Error("invalid default price", "value", cfg.DefaultPricePerHundred, "error", err)
		return
	}

	checks := map[string]handlers.Pinger{"postgres": db, "redis": redisAdap}
	stats := map[string]handlers.StatsFunc{}

	var dialer gateway.Dialer
	if cfg.BridgeURL == memoryBridge {
		logger.Warn("using the in-memory messaging platform; nothing reaches a real platform")
		dialer = gateway.NewMemoryPlatform()
	} else {
		bridge, err := gateway.NewBridgeDialer(gateway.BridgeConfig{
			URL:            cfg.BridgeURL,
			Timeout:        cfg.BridgeTimeout,
			ConnectRetries: cfg.BridgeConnectRetries,
			RetryDelay:     cfg.BridgeRetryDelay,
			MaxConns:       cfg.FulfillmentWorkers * 2,
		})
		if err != nil {
			logger.Error("failed creating bridge dialer", "error", err)
			return
		}
		checks["bridge"] = bridge
		stats["bridge"] = func() any { return bridge.Metrics().Snapshot() }
		dialer = bridge
	}

	// repositories
	accountRepo := repository.NewAccountRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	autoMessageRepo := repository.NewAutoMessageRepository(db)
	settingRepo := repository.NewPaymentSettingRepository(db)
	connectionRepo := repository.NewConnectionRepository(db)

	// fulfillment
	pool := worker.NewPool(cfg.FulfillmentQueueSize, cfg.FulfillmentWorkers)
	pool.Start()

	lockConfig := processor.DefaultLockConfig()
	lockConfig.LockTTL = cfg.FulfillmentLockTTL

	fulfillmentConfig := processor.DefaultConfig()
	fulfillmentConfig.GroupDelay = cfg.FulfillmentGroupDelay
	fulfillmentConfig.MaxFloodWait = cfg.FulfillmentFloodWait

	fulfillment := processor.NewFulfillmentProcessor(
		orderRepo,
		groupRepo,
		autoMessageRepo,
		connectionRepo,
		dialer,
		processor.NewOrderLock(redisAdap, lockConfig),
		pool,
		fulfillmentConfig,
	)
	stats["fulfillment"] = func() any { return fulfillment.Metrics().GetStats() }
	stats["queue"] = func() any { return map[string]int{"pending": pool.Pending()} }

	// fails orders whose run died with a process, here or elsewhere
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go fulfillment.WatchInterrupted(sweepCtx, cfg.FulfillmentRecoverInterval, cfg.FulfillmentRecoverAge)

	challenges := gateway.NewChallengeStore(cfg.ChallengeTTL)

	// services
	defaultSetting := model.PaymentSetting{
		PricePerHundredGroups: defaultPrice,
		MaxGroupsPerOrder:     cfg.DefaultMaxGroupsPerOrder,
	}
	if err := defaultSetting.Validate(); err != nil {
		logger.Error("invalid default payment settings", "error", err)
		return
	}
	settingsService := services.NewSettingsService(settingRepo, defaultSetting)
	orderService := services.NewOrderService(
		accountRepo,
		transactionRepo,
		orderRepo,
		groupRepo,
		connectionRepo,
		settingsService,
		fulfillment,
	)
	ledgerService := services.NewLedgerService(accountRepo, transactionRepo)
	statsService := services.NewStatsService(accountRepo, orderRepo, groupRepo)
	connectionService := services.NewConnectionService(dialer, challenges, connectionRepo)

	// v1 handlers
	orderHandler := handlers.NewOrderHandler(orderService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	accountHandler := handlers.NewAccountHandler(statsService, connectionService)
	settingsHandler := handlers.NewSettingsHandler(settingsService)
	healthHandler := handlers.NewHealthHandler(checks, stats)

	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN is empty; admin routes will reject every request")
	}

	g := s.Router.Group("/api/v1")
	handlers.RegisterOrderRoutes(g, orderHandler)
	handlers.RegisterLedgerRoutes(g, ledgerHandler)
	handlers.RegisterLedgerAdminRoutes(g, cfg.AdminToken, ledgerHandler)
	handlers.RegisterAccountRoutes(g, accountHandler)
	handlers.RegisterSettingsRoutes(g, cfg.AdminToken, settingsHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(cfg.HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	logger.Info("shutting down")
	s.Shutdown()
	// in-flight and queued runs are cancelled and their orders recorded as failed
	pool.Stop()
	stopSweep()
	challenges.Close()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
