package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"candle-signals/config"
	"candle-signals/internal/analysis"
	"candle-signals/internal/api"
	"candle-signals/internal/auth"
	"candle-signals/internal/binance"
	"candle-signals/internal/cache"
	"candle-signals/internal/database"
	"candle-signals/internal/events"
	"candle-signals/internal/logging"
	"candle-signals/internal/signals"
	"candle-signals/internal/trace"
	"candle-signals/internal/vault"
)

func main() {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	// Secrets from Vault override file and environment values
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			logger.Fatal("Failed to create Vault client", "error", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		secrets, err := vaultClient.LoadServiceSecrets(ctx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to load secrets from Vault", "error", err)
		}
		secrets.Apply(cfg)
		logger.Info("Service secrets loaded from Vault", "address", cfg.VaultConfig.Address)
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	if err := trace.Init(trace.Config{
		Enabled:     cfg.TracingConfig.Enabled,
		ServiceName: cfg.TracingConfig.ServiceName,
	}); err != nil {
		logger.Warn("Failed to initialize tracing", "error", err)
	}

	// Initialize event bus
	eventBus := events.NewEventBus()
	eventBus.SubscribeAll(func(e events.Event) {
		logger.Debug("Event published", "type", string(e.Type))
	})

	// Cache: Redis when configured, otherwise in-process
	var store cache.Store
	if cfg.RedisConfig.Enabled {
		redisCache, err := cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Warn("Redis unavailable, falling back to in-memory cache", "error", err)
			store = cache.NewMemoryCache()
		} else {
			defer redisCache.Close()
			store = redisCache
		}
	} else {
		store = cache.NewMemoryCache()
	}

	// Signal history
	var repo *database.Repository
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Name,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.RunMigrations(ctx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to run migrations", "error", err)
		}
		repo = database.NewRepository(db)
	}

	// Candle source
	var source binance.CandleSource
	if cfg.BinanceConfig.MockMode {
		logger.Info("Using mock candle source")
		source = binance.NewMockSource()
	} else {
		client := binance.NewClient(cfg.BinanceConfig.APIKey, cfg.BinanceConfig.BaseURL,
			time.Duration(cfg.BinanceConfig.RequestTimeout)*time.Second)
		client.SetRateLimiter(binance.NewRateLimiter(cfg.BinanceConfig.WeightPerMinute))
		source = client
	}
	source = binance.NewCachedSource(source, store, cfg.RedisConfig.KlineTTL)

	impacts, err := cfg.SignalsConfig.Impacts()
	if err != nil {
		logger.Fatal("Invalid signals impact filter", "error", err)
	}

	analyzer := analysis.NewAnalyzer(source, nil, cfg.AnalysisConfig.WindowSize, cfg.AnalysisConfig.KlineLimit)
	analyzer.SetEventBus(eventBus)

	scanner := signals.NewScanner(source, nil, signals.Config{
		Enabled:         cfg.SignalsConfig.Enabled,
		RefreshInterval: cfg.SignalsConfig.RefreshPeriod(),
		WorkerCount:     cfg.SignalsConfig.WorkerCount,
		Window:          cfg.AnalysisConfig.WindowSize,
		Interval:        cfg.AnalysisConfig.DefaultInterval,
		Limit:           cfg.AnalysisConfig.KlineLimit,
		Symbols:         cfg.SignalsConfig.Symbols,
		Impacts:         impacts,
		SignalTTL:       cfg.RedisConfig.SignalTTL,
		KeepSnapshots:   cfg.SignalsConfig.KeepSnapshots,
	})
	scanner.SetCache(store)
	scanner.SetEventBus(eventBus)
	if repo != nil {
		scanner.SetRepository(repo)
	}
	scanner.Start()

	var authService *auth.Service
	if cfg.AuthConfig.Enabled {
		authService = auth.NewService(auth.Config{
			JWTSecret:           cfg.AuthConfig.JWTSecret,
			AccessTokenDuration: cfg.AuthConfig.AccessTokenDuration,
			AdminUser:           cfg.AuthConfig.AdminUser,
			AdminPasswordHash:   cfg.AuthConfig.AdminPasswordHash,
		})
		logger.Info("API authentication enabled", "admin_user", cfg.AuthConfig.AdminUser)
	}

	services := api.Services{
		Analyzer: analyzer,
		Scanner:  scanner,
		Cache:    store,
		Auth:     authService,
		EventBus: eventBus,
	}
	if repo != nil {
		services.History = repo
	}

	server := api.NewServer(api.ServerConfig{
		Port:               cfg.ServerConfig.Port,
		Host:               cfg.ServerConfig.Host,
		ProductionMode:     cfg.ServerConfig.ProductionMode,
		AllowedOrigins:     cfg.ServerConfig.Origins(),
		ReadTimeout:        time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout:       time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
		RateLimitPerMinute: cfg.ServerConfig.RateLimitPerMinute,
	}, services)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("Web server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down web server", "error", err)
	}

	scanner.Stop()

	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error flushing traces", "error", err)
	}

	logger.Info("Shutdown complete")
}
