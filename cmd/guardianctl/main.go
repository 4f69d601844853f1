package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"stop-loss-guardian/internal/guardian/config"
	"stop-loss-guardian/internal/guardian/dto"
	"stop-loss-guardian/internal/guardian/repository"
	"stop-loss-guardian/internal/guardian/service"
	"stop-loss-guardian/pkg/logger"
	"stop-loss-guardian/pkg/postgres"
	"stop-loss-guardian/pkg/redis"
	"stop-loss-guardian/pkg/telegram"
)

var (
	configPath string

	alertSymbol string
	alertLimit  int
	stopType    string
	targetPrice float64
	account     float64
)

// newOperator connects to the state store and feed the way the service does.
// The returned func releases both connections.
func newOperator() (service.OperatorService, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	appLogger, err := logger.New("warn", "console")
	if err != nil {
		return nil, nil, err
	}

	db, err := postgres.NewDB(postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        "silent",
	})
	if err != nil {
		return nil, nil, err
	}

	redisClient := redis.New(redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: 1,
	})

	var notifier telegram.Notifier
	if cfg.Telegram.Enabled() {
		if notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID); err != nil {
			appLogger.Warn("Telegram unavailable, confirmations disabled", logger.ErrorField(err))
			notifier = nil
		}
	}

	operator := service.NewOperatorService(
		appLogger,
		clock.New(),
		repository.NewPositionRiskRepository(db.DB),
		repository.NewUrgentAlertRepository(db.DB),
		repository.NewPriceFeedRepository(redisClient.Client, cfg.Feed, appLogger),
		service.NewPositionSizer(cfg.Guardian),
		service.NewKeyedLocker(),
		notifier,
	)

	closeFn := func() {
		_ = redisClient.Close()
		if sqlDB, err := db.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = appLogger.Sync()
	}
	return operator, closeFn, nil
}

// run executes fn against a fresh operator and prints its result as JSON.
func run(fn func(ctx context.Context, op service.OperatorService) (interface{}, error)) {
	op, closeFn, err := newOperator()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	out, err := fn(ctx, op)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeFn()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}

func target(arg string) dto.PositionTarget {
	if id, err := strconv.ParseUint(arg, 10, 32); err == nil {
		return dto.PositionTarget{ID: uint(id)}
	}
	return dto.PositionTarget{Symbol: arg}
}

func parsePrice(arg string) float64 {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		log.Fatalf("Invalid price %q: %v", arg, err)
	}
	return v
}

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List tracked positions and their risk state",
	Run: func(cmd *cobra.Command, args []string) {
		run(func(ctx context.Context, op service.OperatorService) (interface{}, error) {
			return op.ListPositions(ctx)
		})
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List recent urgent alerts",
	Run: func(cmd *cobra.Command, args []string) {
		run(func(ctx context.Context, op service.OperatorService) (interface{}, error) {
			return op.ListAlerts(ctx, dto.GetUrgentAlertsParam{Symbol: alertSymbol, Limit: alertLimit})
		})
	},
}

var ackCmd = &cobra.Command{
	Use:   "ack <id|symbol> <reason>",
	Short: "Acknowledge a position's alerts until its risk worsens",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		run(func(ctx context.Context, op service.OperatorService) (interface{}, error) {
			return op.Acknowledge(ctx, target(args[0]), args[1])
		})
	},
}

var setStopCmd = &cobra.Command{
	Use:   "set-stop <id|symbol> <price>",
	Short: "Record a stop loss and reset escalation",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		price := parsePrice(args[1])
		run(func(ctx context.Context, op service.OperatorService) (interface{}, error) {
			return op.SetStopLoss(ctx, target(args[0]), dto.SetStopLossRequest{StopPrice: price, StopType: stopType})
		})
	},
}

var sizeCmd = &cobra.Command{
	Use:   "size <symbol> <entry> <stop>",
	Short: "Size a planned trade against the risk limits",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		req := dto.PositionSizeRequest{
			Symbol:       args[0],
			EntryPrice:   parsePrice(args[1]),
			StopPrice:    parsePrice(args[2]),
			TargetPrice:  targetPrice,
			AccountValue: account,
		}
		run(func(ctx context.Context, op service.OperatorService) (interface{}, error) {
			return op.PositionSize(ctx, req)
		})
	},
}

func main() {
	rootCmd := &cobra.Command{Use: "guardianctl", Short: "Operator commands for the stop loss guardian"}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config-guardian.yaml", "Path to the configuration file")

	alertsCmd.Flags().StringVar(&alertSymbol, "symbol", "", "Only alerts for this symbol")
	alertsCmd.Flags().IntVar(&alertLimit, "limit", 50, "Maximum alerts to list")
	setStopCmd.Flags().StringVar(&stopType, "type", "manual", "Stop type: manual, atr, percentage or support")
	sizeCmd.Flags().Float64Var(&targetPrice, "target", 0, "Profit target, enables the reward ratio")
	sizeCmd.Flags().Float64Var(&account, "account", 0, "Account value, defaults to the broker's")

	rootCmd.AddCommand(positionsCmd, alertsCmd, ackCmd, setStopCmd, sizeCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing guardianctl CLI: %s\n", err)
		os.Exit(1)
	}
}
