package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/cpr_daily_bot/internal/infrastructure/exchange"
	"github.com/vitos/cpr_daily_bot/internal/infrastructure/logger"
	"github.com/vitos/cpr_daily_bot/internal/infrastructure/storage"
	"github.com/vitos/cpr_daily_bot/internal/usecase"
	"github.com/vitos/cpr_daily_bot/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"exchange"`
	Strategy struct {
		Symbol           string  `yaml:"symbol"`
		Currency         string  `yaml:"currency"`
		RiskPercent      float64 `yaml:"risk_percent"`
		Leverage         int     `yaml:"leverage"`
		SLPercent        float64 `yaml:"sl_percent"`
		TPPercent        float64 `yaml:"tp_percent"`
		TPPercentReduced float64 `yaml:"tp_percent_reduced"`
		MinOrderQty      float64 `yaml:"min_order_qty"`
		ForceEntry       bool    `yaml:"force_entry"`
	} `yaml:"strategy"`
	Schedule struct {
		PollIntervalSec int  `yaml:"poll_interval_sec"`
		Accelerated     bool `yaml:"accelerated"`
		EntryAfterSec   int  `yaml:"entry_after_sec"`
		EODAfterSec     int  `yaml:"eod_after_sec"`
	} `yaml:"schedule"`
	Polling struct {
		BalanceRefreshSec int `yaml:"balance_refresh_sec"`
	} `yaml:"polling"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// 1. Load Config
	_ = godotenv.Load()

	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	apiKey := os.Getenv("PHEMEX_API_KEY")
	apiSecret := os.Getenv("PHEMEX_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		fmt.Println("PHEMEX_API_KEY and PHEMEX_API_SECRET must be set")
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "bot.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange
	adapter := exchange.NewPhemexAdapter(apiKey, apiSecret, cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint, log)

	// 5. Init Services
	book := usecase.NewTradeBook(log)
	runner := usecase.NewDeferredRunner()
	accounts := usecase.NewAccountService(adapter, cfg.Strategy.Currency, log)
	signalService := usecase.NewSignalService(adapter, "1d", log)

	strategy := usecase.StrategyConfig{
		Symbol:           cfg.Strategy.Symbol,
		Currency:         cfg.Strategy.Currency,
		RiskPercent:      cfg.Strategy.RiskPercent,
		Leverage:         cfg.Strategy.Leverage,
		SLPercent:        cfg.Strategy.SLPercent,
		TPPercent:        cfg.Strategy.TPPercent,
		TPPercentReduced: cfg.Strategy.TPPercentReduced,
		MinOrderQty:      cfg.Strategy.MinOrderQty,
		ForceEntry:       cfg.Strategy.ForceEntry,

		ConfirmDelayFull:    2 * time.Second,
		ConfirmDelayPartial: 5 * time.Second,
		ConfirmRetries:      3,
		ConfirmBackoff:      2 * time.Second,
		SettleWait:          2 * time.Second,
		ActionTimeout:       15 * time.Second,
		ShutdownCloseWait:   10 * time.Second,
	}
	orch := usecase.NewOrchestrator(strategy, adapter, signalService, accounts, book, store, runner, log)

	detector := usecase.NewHitDetector(cfg.Strategy.Symbol, orch, runner, log)
	detector.Attach(adapter)

	adapter.OnAccountUpdate(accounts.ApplyUpdate)

	// 6. Connect Event Stream
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := adapter.SubscribeAccount(); err != nil {
		log.Fatal("Failed to queue account subscription", zap.Error(err))
	}
	if err := adapter.SubscribeKlines(cfg.Strategy.Symbol, "1d"); err != nil {
		log.Fatal("Failed to queue kline subscription", zap.Error(err))
	}
	if err := adapter.Connect(ctx); err != nil {
		log.Fatal("Failed to connect event stream", zap.Error(err))
	}

	// 7. Bootstrap Strategy
	if err := orch.Init(ctx); err != nil {
		log.Fatal("Failed to init strategy", zap.Error(err))
	}
	if err := signalService.Bootstrap(ctx, cfg.Strategy.Symbol); err != nil {
		log.Error("Failed to bootstrap candle history", zap.Error(err))
	}
	if _, err := accounts.Refresh(ctx); err != nil {
		log.Error("Failed to load initial balance", zap.Error(err))
	}

	// 8. Start Scheduler and Balance Refresh
	var entryWindow, eodWindow *usecase.ScheduleWindow
	if cfg.Schedule.Accelerated {
		entryAfter := time.Duration(cfg.Schedule.EntryAfterSec) * time.Second
		eodAfter := time.Duration(cfg.Schedule.EODAfterSec) * time.Second
		entryWindow, eodWindow = usecase.AcceleratedWindows(time.Now(), entryAfter, eodAfter)
		log.Warn("Accelerated schedule enabled",
			zap.Duration("entry_after", entryAfter), zap.Duration("eod_after", eodAfter))
	} else {
		entryWindow, eodWindow = usecase.DefaultWindows()
	}

	pollInterval := time.Duration(cfg.Schedule.PollIntervalSec) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	scheduler := usecase.NewScheduler(entryWindow, eodWindow, orch, pollInterval, log)
	go scheduler.Run(ctx)

	balanceRefresh := time.Duration(cfg.Polling.BalanceRefreshSec) * time.Second
	if balanceRefresh <= 0 {
		balanceRefresh = 30 * time.Second
	}
	go accounts.Run(ctx, balanceRefresh)

	// 9. Start Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := web.NewServer(port, orch, scheduler, accounts, store, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 10. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	orch.Shutdown(shutdownCtx)
	runner.Wait()
	server.Shutdown(shutdownCtx)
	adapter.Close()
}
