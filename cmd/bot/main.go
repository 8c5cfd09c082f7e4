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

	"github.com/evanz1215/binance-trading-bot/internal/api"
	"github.com/evanz1215/binance-trading-bot/internal/config"
	"github.com/evanz1215/binance-trading-bot/internal/engine"
	"github.com/evanz1215/binance-trading-bot/internal/exchange"
	"github.com/evanz1215/binance-trading-bot/internal/logger"
	"github.com/evanz1215/binance-trading-bot/internal/monitoring"
	"github.com/evanz1215/binance-trading-bot/internal/notifications"
	"github.com/evanz1215/binance-trading-bot/internal/recorder"
	"github.com/evanz1215/binance-trading-bot/internal/risk"
	"github.com/evanz1215/binance-trading-bot/internal/statecache"
	"github.com/evanz1215/binance-trading-bot/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting trading engine: exchange=%s mode=%s strategy=%s",
		cfg.Exchange.Name, cfg.Exchange.Mode, cfg.Trading.StrategyName)

	fileLog, err := logger.NewLogger(cfg.Trading.StrategyName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer fileLog.Close()

	client, err := exchange.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create exchange client: %v", err)
	}
	defer client.Disconnect()

	provider, err := strategy.NewProvider(cfg.Trading.StrategyName)
	if err != nil {
		log.Fatalf("Failed to create strategy: %v", err)
	}

	rec, err := newRecorder(cfg)
	if err != nil {
		log.Fatalf("Failed to create recorder: %v", err)
	}
	defer rec.Close()

	notifier := newNotifier(cfg)
	healthChecker := monitoring.NewHealthChecker()
	riskMgr := risk.NewManager(client, &cfg.Trading, fileLog)

	coordinator := engine.NewCoordinator(cfg, client, provider, riskMgr, rec, notifier, healthChecker, fileLog)

	go startMonitoringServer(cfg, healthChecker)

	apiServer := api.NewServer(coordinator, healthChecker, fileLog)
	go func() {
		if err := apiServer.Start(cfg.Monitoring.APIPort); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	ctx := context.Background()
	if err := coordinator.Start(ctx); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	var publisher *statecache.Publisher
	if cfg.Redis.Addr != "" {
		publisher, err = statecache.NewPublisher(&cfg.Redis, coordinator, 15*time.Second, fileLog)
		if err != nil {
			log.Printf("State publishing disabled: %v", err)
		} else {
			publisher.Start()
		}
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if publisher != nil {
		if err := publisher.Stop(); err != nil {
			log.Printf("Error stopping state publisher: %v", err)
		}
	}
	if err := coordinator.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping engine: %v", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping API server: %v", err)
	}

	log.Println("Engine stopped successfully")
}

// newRecorder selects postgres when a DSN is configured, otherwise the
// in-memory recorder, which is fine for sim and paper runs.
func newRecorder(cfg *config.Config) (recorder.Recorder, error) {
	if cfg.Database.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return recorder.NewPostgresRecorder(ctx, cfg.Database.URL)
	}
	if cfg.Exchange.Mode == "live" {
		log.Println("WARNING: live trading without DATABASE_URL, sessions are not persisted")
	}
	return recorder.NewMemoryRecorder(), nil
}

func newNotifier(cfg *config.Config) notifications.Notifier {
	var targets notifications.Multi
	if cfg.Notifications.TelegramToken != "" {
		targets = append(targets, notifications.NewTelegramNotifier(
			cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID))
	}
	if cfg.Notifications.DiscordWebhookURL != "" {
		targets = append(targets, notifications.NewDiscordNotifier(cfg.Notifications.DiscordWebhookURL))
	}
	if len(targets) == 0 {
		log.Println("Notifications disabled (no telegram token or discord webhook configured)")
		return nil
	}
	return targets
}

func startMonitoringServer(cfg *config.Config, healthChecker *monitoring.HealthChecker) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	mux.Handle("/health", healthChecker)

	addr := fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort)
	log.Printf("Starting metrics server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("Metrics server error: %v", err)
	}
}
