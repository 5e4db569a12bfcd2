package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"urban-issue-service/internal/alerts"
	"urban-issue-service/internal/api"
	"urban-issue-service/internal/auth"
	"urban-issue-service/internal/classifier"
	"urban-issue-service/internal/config"
	"urban-issue-service/internal/cronjobs"
	"urban-issue-service/internal/db"
	"urban-issue-service/internal/hotspot"
	"urban-issue-service/internal/inference"
	"urban-issue-service/internal/kafka"
	"urban-issue-service/internal/logging"
	"urban-issue-service/internal/models"
	"urban-issue-service/internal/providers"
	"urban-issue-service/internal/severity"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Models are checked once; a missing model aborts startup.
	readyCtx, cancelReady := context.WithTimeout(ctx, cfg.Models.Timeout)
	cls := classifier.NewRemoteClassifier(cfg.Models.ClassifierURL, cfg.Models.Timeout, cfg.Models.Retries, logger)
	if err := cls.Ready(readyCtx); err != nil {
		log.Fatalf("Image classifier unavailable: %v", err)
	}
	var model severity.Model = severity.RuleModel{}
	if cfg.Models.SeverityURL != "" {
		remote := severity.NewRemoteModel(cfg.Models.SeverityURL, cfg.Models.Timeout, cfg.Models.Retries, logger)
		if err := remote.Ready(readyCtx); err != nil {
			log.Fatalf("Severity model unavailable: %v", err)
		}
		model = remote
	} else {
		logger.Warnf("SEVERITY_MODEL_URL not set, using rule-based severity")
	}
	cancelReady()

	adapter, err := severity.NewAdapter(model)
	if err != nil {
		log.Fatalf("Failed to init severity adapter: %v", err)
	}
	loc, err := time.LoadLocation(cfg.Inference.Timezone)
	if err != nil {
		log.Fatalf("Failed to load timezone: %v", err)
	}
	orchestrator := inference.New(cls, adapter, inference.SystemClock{Location: loc}, logger)

	clusterer, err := hotspot.NewService(hotspot.Config{
		Eps:        cfg.Hotspot.Eps,
		MinSamples: cfg.Hotspot.MinSamples,
		MinPoints:  cfg.Hotspot.MinPoints,
		MaxPoints:  cfg.Hotspot.MaxPoints,
		Timeout:    cfg.Hotspot.Timeout,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to init hotspot service: %v", err)
	}

	// Alert workers
	var notifiers []alerts.Notifier
	if cfg.Telegram.BotToken != "" {
		tg, err := providers.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.RateLimit, logger)
		if err != nil {
			log.Fatalf("Failed to init Telegram provider: %v", err)
		}
		notifiers = append(notifiers, tg)
	}
	if cfg.Email.SMTPServer != "" {
		mail, err := providers.NewEmail(cfg.Email.SMTPServer, cfg.Email.SMTPPort, cfg.Email.Username, cfg.Email.Password, cfg.Email.To)
		if err != nil {
			log.Fatalf("Failed to init Email provider: %v", err)
		}
		notifiers = append(notifiers, mail)
	}
	minPriority, err := models.ParsePriority(cfg.Alerts.MinPriority)
	if err != nil {
		log.Fatalf("Invalid ALERT_MIN_PRIORITY: %v", err)
	}
	svc := alerts.New(alerts.Config{
		QueueSize:   cfg.Alerts.QueueSize,
		MaxWorkers:  cfg.Alerts.MaxWorkers,
		MinPriority: minPriority,
	}, alerts.NewHub(logger), logger, notifiers...)
	var wg sync.WaitGroup
	svc.Start(&wg)

	deps := api.Deps{
		Inference: orchestrator,
		Clusterer: clusterer,
		Events:    svc,
		Hub:       svc.Hub(),
	}

	// Connect to database
	var scheduler *cronjobs.Scheduler
	if cfg.DB.DSN != "" {
		dbConn, err := db.New(ctx, cfg.DB.DSN)
		if err != nil {
			log.Fatalf("Database connection failed: %v", err)
		}
		defer dbConn.Close()
		if err := dbConn.Migrate(ctx); err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		deps.Store = dbConn

		tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			log.Fatalf("Failed to init token auth: %v", err)
		}
		deps.Auth = tokens
		if cfg.Auth.AdminEmail != "" {
			hash, err := auth.HashPassword(cfg.Auth.AdminPassword)
			if err != nil {
				log.Fatalf("Failed to hash admin password: %v", err)
			}
			admin := models.User{Name: cfg.Auth.AdminName, Email: strings.ToLower(cfg.Auth.AdminEmail), PasswordHash: hash}
			if err := dbConn.EnsureAdmin(ctx, &admin); err != nil {
				log.Fatalf("Failed to provision admin: %v", err)
			}
			logger.Infof("Admin account %s ready", admin.Email)
		}

		lookback := time.Duration(cfg.Hotspot.LookbackDays) * 24 * time.Hour
		cache := cronjobs.NewHotspotCache(dbConn, clusterer, lookback, logger)
		deps.Hotspots = cache
		scheduler, err = cronjobs.NewScheduler(cfg.Hotspot.RefreshSpec, cache, cfg.Hotspot.Timeout+30*time.Second, logger)
		if err != nil {
			log.Fatalf("Failed to schedule hotspot refresh: %v", err)
		}
		scheduler.Start()
	} else {
		logger.Warnf("DB_DSN not set, issue and analytics routes disabled")
	}

	// Kafka decouples publishing from the alert workers when configured.
	kcfg := kafka.Config{Broker: cfg.Kafka.Broker, Topic: cfg.Kafka.Topic, GroupID: cfg.Kafka.GroupID}
	if cfg.Kafka.Broker != "" {
		producer := kafka.NewProducer(kcfg, logger)
		defer producer.Close()
		deps.Events = producer

		consumer := kafka.NewConsumer(kcfg, svc, logger)
		defer consumer.Close()
		consumer.Start(ctx, &wg)
		logger.Infof("Kafka consumer initialized with topic: %s", kcfg.Topic)
	}

	// Start API server
	router := api.NewRouter(deps, logger, cfg)
	server := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	svc.Stop()
	wg.Wait()
	logger.Infof("Shutdown complete")
}
