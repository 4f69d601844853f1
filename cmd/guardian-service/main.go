package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	swagger "github.com/swaggo/echo-swagger"

	"stop-loss-guardian/internal/guardian/config"
	delivery "stop-loss-guardian/internal/guardian/delivery/http"
	_ "stop-loss-guardian/internal/guardian/docs"
	"stop-loss-guardian/internal/guardian/repository"
	"stop-loss-guardian/internal/guardian/service"
	"stop-loss-guardian/pkg/logger"
	"stop-loss-guardian/pkg/metrics"
	"stop-loss-guardian/pkg/postgres"
	"stop-loss-guardian/pkg/redis"
	"stop-loss-guardian/pkg/telegram"
	"stop-loss-guardian/pkg/twilio"
	"stop-loss-guardian/pkg/utils"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the stop loss guardian",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.NewWithConfig(logger.Config{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		FilePath:   cfg.Logger.FilePath,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Stop Loss Guardian", logger.Field("name", cfg.App.Name), logger.Field("env", cfg.App.Env))

	// Initialize database
	db, err := postgres.NewDB(postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		appLogger.Fatal("Failed to get database handle", logger.ErrorField(err))
	}
	defer sqlDB.Close()

	// Initialize Redis. The feed being down is survivable: positions are still checked
	// for missing stops, so the service starts anyway.
	redisClient := redis.New(redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		appLogger.Warn("Redis is unreachable, price feed unavailable", logger.ErrorField(err))
	}

	// Initialize notifiers
	var telegramNotifier telegram.Notifier
	if cfg.Telegram.Enabled() {
		telegramNotifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Fatal("Failed to initialize Telegram notifier", logger.ErrorField(err))
		}
	}

	var twilioClient twilio.Client
	if cfg.Twilio.Enabled() {
		twilioClient, err = twilio.NewClient(twilio.Config{
			AccountSID:          cfg.Twilio.AccountSID,
			AuthToken:           cfg.Twilio.AuthToken,
			FromNumber:          cfg.Twilio.FromNumber,
			MaxRequestPerMinute: cfg.Twilio.MaxRequestPerMinute,
		})
		if err != nil {
			appLogger.Fatal("Failed to initialize Twilio client", logger.ErrorField(err))
		}
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	// Initialize repositories
	journalRepo := repository.NewJournalPositionRepository(db.DB)
	riskRepo := repository.NewPositionRiskRepository(db.DB)
	alertRepo := repository.NewUrgentAlertRepository(db.DB)
	feedRepo := repository.NewPriceFeedRepository(redisClient.Client, cfg.Feed, appLogger)

	var channels []service.Channel
	if telegramNotifier != nil {
		channels = append(channels, service.Channel{Sender: repository.NewTelegramNotificationRepository(telegramNotifier)})
	}
	if twilioClient != nil {
		channels = append(channels,
			service.Channel{Sender: repository.NewSMSNotificationRepository(twilioClient), Recipient: cfg.Twilio.AlertPhoneNumber},
			service.Channel{Sender: repository.NewVoiceNotificationRepository(twilioClient, appLogger), Recipient: cfg.Twilio.AlertPhoneNumber},
		)
	}
	if err := service.ValidateChannels(channels); err != nil {
		appLogger.Fatal("Alert channels are not fully configured", logger.ErrorField(err))
	}

	// Initialize services
	clk := clock.New()
	locker := service.NewKeyedLocker()
	sizer := service.NewPositionSizer(cfg.Guardian)
	dispatcher := service.NewAlertDispatcher(cfg.Guardian, appLogger, clk, channels, sizer, recorder)

	monitorSvc := service.NewMonitorService(cfg.Guardian, appLogger, clk, service.MonitorDeps{
		JournalRepo: journalRepo,
		RiskRepo:    riskRepo,
		Feed:        feedRepo,
		Evaluator:   service.NewRiskEvaluator(cfg.Guardian),
		Policy:      service.NewEscalationPolicy(cfg.Guardian),
		Dispatcher:  dispatcher,
		Locker:      locker,
		Notifier:    telegramNotifier,
		Recorder:    recorder,
	})
	operatorSvc := service.NewOperatorService(appLogger, clk, riskRepo, alertRepo, feedRepo, sizer, locker, telegramNotifier)

	// Start the monitor loop
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitorSvc.Start(ctx)
	}()

	var digestSvc service.DigestService
	if telegramNotifier != nil {
		digestSvc = service.NewDigestService(cfg.Guardian, appLogger, clk, riskRepo, telegramNotifier)
		if err := digestSvc.Start(ctx); err != nil {
			appLogger.Fatal("Failed to start digest", logger.ErrorField(err))
		}
	}

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	delivery.NewHealthHandler(map[string]delivery.HealthCheck{
		"postgres": sqlDB.PingContext,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}).RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(recorder.Handler()))
	e.GET("/swagger/*", swagger.WrapHandler)

	apiV1 := e.Group("/api/v1")
	delivery.NewGuardianHandler(operatorSvc, appLogger).RegisterRoutes(apiV1)

	// Start server
	utils.GoSafe(appLogger, func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop()
		}
	})

	// Wait for shutdown signal
	<-ctx.Done()

	appLogger.Info("Shutting down guardian...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.ErrorField(err))
	}
	if digestSvc != nil {
		digestSvc.Stop()
	}
	<-monitorDone

	appLogger.Info("Guardian stopped")
}

// @title Stop Loss Guardian API
// @version 1.0
// @description Operator API for positions, urgent alerts and position sizing.
// @BasePath /api/v1
func main() {
	rootCmd := &cobra.Command{Use: "guardian-service"}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config-guardian.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing guardian-service CLI: %s\n", err)
		os.Exit(1)
	}
}
