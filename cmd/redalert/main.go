package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"github.com/redalert-desktop/redalert/internal/alerts"
	"github.com/redalert-desktop/redalert/internal/client"
	"github.com/redalert-desktop/redalert/internal/config"
	"github.com/redalert-desktop/redalert/internal/database"
	"github.com/redalert-desktop/redalert/internal/dedup"
	"github.com/redalert-desktop/redalert/internal/feed"
	"github.com/redalert-desktop/redalert/internal/gateway"
	"github.com/redalert-desktop/redalert/internal/logging"
	"github.com/redalert-desktop/redalert/internal/middleware"
	"github.com/redalert-desktop/redalert/internal/notify"
	"github.com/redalert-desktop/redalert/internal/pipeline"
	"github.com/redalert-desktop/redalert/internal/poller"
	"github.com/redalert-desktop/redalert/internal/ratelimit"
	"github.com/redalert-desktop/redalert/internal/stream"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logging.New(cfg.LogLevel, cfg.LogFormat, "redalert")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	zl.Info("Starting Red Alert daemon",
		zap.String("api_base_url", cfg.APIBaseURL),
		zap.String("stream_transport", cfg.StreamTransport),
		zap.String("timezone", cfg.Location.String()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ========== Upstream client ==========

	headers := gateway.BrowserHeaders(cfg.UserAgent)
	var transport stream.Transport
	switch cfg.StreamTransport {
	case config.TransportSSE:
		transport = stream.NewSSETransport(headers, zl.Named("sse"))
	case config.TransportWebSocket:
		transport = stream.NewWebSocketTransport(headers, zl.Named("websocket"))
	}

	alertClient := client.New(client.Config{
		BaseURL:   cfg.APIBaseURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
		Limiter:   ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Location:  cfg.Location,
		Transport: transport,
	}, zl)

	// ========== History ==========

	db, err := database.Connect(cfg.DatabaseURL, logger.Silent)
	if err != nil {
		zl.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		zl.Fatal("Failed to migrate database", zap.Error(err))
	}
	store := database.NewStore(db, zl.Named("history"))
	if cfg.RetentionDays > 0 {
		go store.RunRetention(ctx, time.Duration(cfg.RetentionDays)*24*time.Hour, time.Hour)
	}

	// ========== Dedup & notifiers ==========

	var seen dedup.Store
	var notifiers []notify.Notifier

	if cfg.RedisAddr != "" {
		redisSeen, err := dedup.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.DedupTTL)
		if err != nil {
			zl.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		seen = redisSeen
		notifiers = append(notifiers, notify.NewRedisNotifier(redisSeen.Client(), cfg.RedisChannel))
		zl.Info("Using Redis for dedup and pub/sub", zap.String("addr", cfg.RedisAddr), zap.String("channel", cfg.RedisChannel))
	} else {
		seen = dedup.NewMemory(cfg.DedupTTL, time.Minute)
	}
	defer seen.Close()

	if cfg.MQTTBroker != "" {
		mq, err := notify.DialMQTT(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic)
		if err != nil {
			zl.Error("MQTT notifier disabled", zap.String("broker", cfg.MQTTBroker), zap.Error(err))
		} else {
			defer mq.Close()
			notifiers = append(notifiers, mq)
		}
	}

	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(slack.New(cfg.SlackBotToken), cfg.SlackChannel, zl.Named("slack")))
	}

	dispatcher := notify.NewDispatcher(zl.Named("notify"), 10*time.Second, notifiers...)
	zl.Info("Notifiers configured",
		zap.Int("count", dispatcher.Len()),
		zap.Strings("monitored_areas", cfg.MonitoredAreas),
	)

	// ========== Pipeline ==========

	hub := feed.NewHub(0)
	pipe := pipeline.New(pipeline.Options{
		Dedup:       seen,
		History:     store,
		Broadcaster: hub,
		Notifier:    dispatcher,
		Areas:       alerts.NewAreaFilter(cfg.MonitoredAreas),
	}, zl.Named("pipeline"))
	go pipe.Run(ctx)

	go poller.New(alertClient, pipe, cfg.PollInterval, zl.Named("poller")).
		WithFreshness(cfg.FreshnessWindow, cfg.Location).
		Run(ctx)

	supervisor := stream.NewSupervisor(alertClient, cfg.StreamReconnectDelay, zl.Named("stream"))
	go supervisor.Run(ctx, func(batch []alerts.Alert) {
		pipe.Submit(batch, database.SourceStream)
	})

	// ========== Feed server ==========

	var auth *middleware.FeedAuth
	if cfg.AuthEnabled() {
		var err error
		auth, err = middleware.NewFeedAuth(middleware.FeedAuthConfig{
			Username: cfg.AdminUsername,
			Password: cfg.AdminPassword,
			Secret:   cfg.JWTSecret,
			TokenTTL: time.Duration(cfg.JWTExpiryHours) * time.Hour,
		}, zl.Named("auth"))
		if err != nil {
			zl.Fatal("Failed to set up feed authentication", zap.Error(err))
		}
		zl.Info("Feed authentication enabled", zap.String("jwt_secret_source", cfg.JWTSecretSource))
	} else {
		zl.Warn("ADMIN_PASSWORD is not set, feed server is unauthenticated")
	}

	server := feed.NewServer(feed.Options{
		Port:        cfg.HTTPPort,
		Client:      alertClient,
		History:     store,
		Hub:         hub,
		Auth:        auth,
		CORS:        middleware.NewCORSMiddleware(cfg.CORSOrigins...),
		Location:    cfg.Location,
		StreamState: func() string { return supervisor.State().String() },
		Stats:       pipe.Stats,
	}, zl.Named("feed"))
	server.Start()

	// ========== Shutdown ==========

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	zl.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("Error shutting down feed server", zap.Error(err))
	}
	zl.Info("Shutdown complete")
}
