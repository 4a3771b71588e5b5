package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-engine/config"
	"signal-engine/internal/api"
	"signal-engine/internal/auth"
	"signal-engine/internal/binance"
	"signal-engine/internal/cache"
	"signal-engine/internal/candles"
	"signal-engine/internal/database"
	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/logging"
	"signal-engine/internal/market"
	"signal-engine/internal/risk"
	"signal-engine/internal/service"
	"signal-engine/internal/telemetry"
	"signal-engine/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	})
	logger.Info().Msg("starting signal engine")

	executionTF, err := market.ParseTimeframe(cfg.EngineConfig.ExecutionTF)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid execution timeframe")
	}
	trendTF, err := market.ParseTimeframe(cfg.EngineConfig.TrendTF)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid trend timeframe")
	}
	trailingTF, err := market.ParseTimeframe(cfg.EngineConfig.TrailingTF)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid trailing timeframe")
	}

	// Exchange credential, from Vault when enabled
	apiKey := cfg.BinanceConfig.APIKey
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(vault.Config{
			Enabled:    true,
			Address:    cfg.VaultConfig.Address,
			Token:      cfg.VaultConfig.Token,
			SecretPath: cfg.VaultConfig.SecretPath,
			TLSEnabled: cfg.VaultConfig.TLSEnabled,
			CACert:     cfg.VaultConfig.CACert,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create vault client")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		creds, err := vaultClient.GetCredentials(ctx)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Msg("vault credential lookup failed, using configured API key")
		} else {
			apiKey = creds.APIKey
			logger.Info().Msg("exchange credential loaded from vault")
		}
	}

	// Candle sources: REST upstream, optional Redis cache, optional Postgres history
	restClient := binance.NewClient(apiKey, cfg.BinanceConfig.BaseURL)

	var candleCache candles.Cache
	if cfg.RedisConfig.Enabled {
		cc := cache.New(cache.Options{
			Address:  cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
			PoolSize: cfg.RedisConfig.PoolSize,
		}, logger)
		defer cc.Close()
		candleCache = cc
	}

	var candleStore candles.Store
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.RunMigrations(ctx)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("database migrations failed")
		}
		candleStore = database.NewCandleStore(db)
	}

	tel := telemetry.NewZerolog(logger)
	supplier := candles.NewProvider(restClient, candleCache, candleStore, tel)

	// Engine and risk controller
	engineCfg := engine.DefaultConfig()
	engineCfg.ExecutionTF = executionTF
	engineCfg.TrendTF = trendTF
	engineCfg.TrailingTF = trailingTF
	engineCfg.StartupCandles = cfg.EngineConfig.StartupCandles
	eng := engine.New(engineCfg, tel)

	riskCfg := risk.DefaultConfig()
	riskCfg.StopLossDefault = cfg.RiskConfig.StopLossDefault
	riskCfg.StopLossTight = cfg.RiskConfig.StopLossTight
	riskCfg.StopLossWide = cfg.RiskConfig.StopLossWide
	riskCtl := risk.NewController(riskCfg, tel)

	eventBus := events.NewEventBus()
	eventBus.Subscribe(events.EventSignalGenerated, func(e events.Event) {
		logger.Info().
			Interface("signal", e.Data).
			Str("event_id", e.ID).
			Msg("signal generated")
	})

	svc := service.New(supplier, eng, riskCtl, eventBus, cfg.EngineConfig.Symbols, logger)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	refreshInterval := time.Duration(cfg.EngineConfig.RefreshSeconds) * time.Second
	if err := svc.Start(rootCtx, refreshInterval); err != nil {
		logger.Fatal().Err(err).Msg("failed to start signal service")
	}
	defer svc.Stop()

	// Live candle-close stream, optional
	var stream *binance.KlineStream
	if cfg.BinanceConfig.StreamEnabled {
		stream = binance.NewKlineStream(cfg.BinanceConfig.StreamURL, logger)
		for _, symbol := range svc.Symbols() {
			stream.Subscribe(symbol, executionTF, trendTF, trailingTF)
		}
		stream.OnCandleClose(svc.HandleCandleClose)
		if err := stream.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start kline stream")
		}
		defer stream.Stop()
	}

	// HTTP API
	var tokenManager *auth.TokenManager
	if cfg.AuthConfig.Enabled {
		tokenManager = auth.NewTokenManager(
			cfg.AuthConfig.JWTSecret,
			time.Duration(cfg.AuthConfig.TokenMinutes)*time.Minute,
		)
		if token, err := tokenManager.GenerateToken("bootstrap"); err == nil {
			logger.Info().Str("token", token).Msg("bootstrap API token issued")
		}
	}

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		AllowedOrigins: []string{cfg.ServerConfig.AllowedOrigins},
		ProductionMode: cfg.ServerConfig.ProductionMode,
		MaxLeverage:    cfg.RiskConfig.MaxLeverage,
	}, svc, tokenManager, logger)
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start api server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api server shutdown failed")
	}
}
