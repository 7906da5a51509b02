package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dias221467/sitetrack-functions/internal/config"
	"github.com/Dias221467/sitetrack-functions/internal/database"
	"github.com/Dias221467/sitetrack-functions/internal/handlers"
	"github.com/Dias221467/sitetrack-functions/internal/jobs"
	"github.com/Dias221467/sitetrack-functions/internal/push"
	"github.com/Dias221467/sitetrack-functions/internal/repository"
	cron "github.com/Dias221467/sitetrack-functions/internal/scheduler"
	"github.com/Dias221467/sitetrack-functions/internal/services"
	"github.com/Dias221467/sitetrack-functions/pkg/logger"
	"github.com/rs/cors"
)

func main() {
	// Load configuration from .env file
	cfg := config.LoadConfig()

	logger.InitLogger(cfg.LogLevel)
	logger.Log.Info("Logger initialized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Store ---
	var store repository.Store
	var mongoStore *repository.MongoStore
	switch cfg.StoreDriver {
	case "memory":
		logger.Log.Warn("Using in-memory store, data is lost on exit")
		store = repository.NewMemoryStore()
	default:
		db, err := database.ConnectDB(cfg)
		if err != nil {
			log.Fatalf("Database connection error: %v", err)
		}
		defer db.Client().Disconnect(context.Background())
		mongoStore = repository.NewMongoStore(db, cfg.MongoTransactions)
		store = mongoStore
	}

	// --- Push transport ---
	var messenger push.Messenger
	if cfg.FCMProjectID != "" {
		messenger = push.NewFCMClient(cfg.FCMBaseURL, cfg.FCMProjectID, cfg.FCMAccessToken, logger.Log)
	} else {
		logger.Log.Warn("FCM_PROJECT_ID not set, push messages are only logged")
		messenger = push.NewLogMessenger(logger.Log)
	}

	var guard push.DeliveryGuard
	redisClient, err := database.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("Redis connection error: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		guard = push.NewRedisGuard(redisClient, cfg.PushDedupeTTL)
	}

	// --- Services ---
	cascadeService := services.NewCascadeService(store, logger.Log, cfg.CascadePaged)
	resolver := services.NewRecipientResolver(store, logger.Log)
	notificationService := services.NewNotificationService(resolver, messenger, guard, logger.Log)
	purgeService := services.NewPurgeService(store, logger.Log)

	// --- Background jobs ---
	purgeCron, err := cron.StartPurgeCronJobs(purgeService, cfg.PurgeSchedule, cfg.PurgeCollections)
	if err != nil {
		log.Fatalf("Invalid purge schedule: %v", err)
	}
	if purgeCron != nil {
		defer purgeCron.Stop()
	}

	if cfg.WatchChanges {
		if mongoStore == nil {
			log.Fatal("WATCH_CHANGES requires the mongo store driver")
		}
		watcher := jobs.NewChangeWatcher(mongoStore.Database(), cascadeService, notificationService, cfg.TriggerMaxAttempts, logger.Log)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Log.WithError(err).Error("Change watcher stopped")
			}
		}()
	}

	// --- Handlers ---
	triggerHandler := handlers.NewTriggerHandler(cascadeService, notificationService)
	maintenanceHandler := handlers.NewMaintenanceHandler(purgeService)
	router := handlers.NewRouter(triggerHandler, maintenanceHandler, cfg.TriggerSecret)
	if cfg.TriggerSecret == "" {
		logger.Log.Warn("TRIGGER_SECRET not set, trigger endpoints are unauthenticated")
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: c.Handler(router),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Server running on port %s\n", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
