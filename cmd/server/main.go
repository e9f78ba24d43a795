package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/eternisai/report-notifier/internal/auth"
	"github.com/eternisai/report-notifier/internal/config"
	"github.com/eternisai/report-notifier/internal/firebase"
	"github.com/eternisai/report-notifier/internal/logger"
	"github.com/eternisai/report-notifier/internal/metrics"
	"github.com/eternisai/report-notifier/internal/notifications"
	"github.com/eternisai/report-notifier/internal/reports"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	log := appLogger.WithComponent("main")

	if cfg.MemoryLimitMB > 0 {
		debug.SetMemoryLimit(int64(cfg.MemoryLimitMB) << 20)
		log.Info("memory limit set", slog.Int("limit_mb", cfg.MemoryLimitMB))
	}

	log.Info("setting gin mode", slog.String("mode", cfg.GinMode))
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	firebaseClient, err := firebase.NewClient(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredJSON)
	if err != nil {
		log.Error("failed to initialize firebase", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	dispatchMetrics, err := metrics.NewDispatchMetrics(registry)
	if err != nil {
		log.Error("failed to register metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	tokenStore := notifications.NewFirestoreTokenStore(firebaseClient.Firestore, appLogger)
	sender := notifications.NewFCMSender(firebaseClient.Messaging, appLogger, notifications.DebugCurlConfig{
		Enabled:   cfg.PushDebugCurl,
		ProjectID: cfg.FirebaseProjectID,
		CredJSON:  cfg.FirebaseCredJSON,
	})

	templates := make(map[string]notifications.Template, len(cfg.Notifications.StatusMessages))
	for _, msg := range cfg.Notifications.StatusMessages {
		templates[msg.Status] = notifications.Template{Title: msg.Title, Body: msg.Body}
	}

	service := reports.NewService(
		notifications.NewComposer(templates),
		notifications.NewDispatcher(tokenStore, sender, appLogger),
		notifications.NewPruner(tokenStore, cfg.PruneConcurrency, appLogger),
		dispatchMetrics,
		appLogger,
		reports.Options{
			Enabled:                  cfg.PushNotificationsEnabled,
			MaxConcurrentInvocations: int64(cfg.MaxConcurrentInvocations),
			InvocationTimeout:        cfg.InvocationTimeout,
		},
	)

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	var triggerMiddleware []gin.HandlerFunc
	if cfg.TriggerJWKSURL != "" {
		validator, err := auth.NewOIDCValidator(ctx, cfg.TriggerJWKSURL, cfg.TriggerAudience, auth.GoogleIssuers)
		if err != nil {
			log.Error("failed to initialize trigger token validator", slog.String("error", err.Error()))
			os.Exit(1)
		}
		triggerMiddleware = append(triggerMiddleware, auth.RequireBearer(validator, appLogger))
		log.Info("http trigger requires OIDC tokens", slog.String("audience", cfg.TriggerAudience))
	} else {
		log.Warn("TRIGGER_JWKS_URL is empty, http trigger is unauthenticated")
	}
	reports.NewHandler(service, appLogger).RegisterRoutes(router, triggerMiddleware...)

	var natsConn *nats.Conn
	var subscriber *reports.NATSSubscriber
	if cfg.NatsURL != "" {
		natsConn, err = nats.Connect(cfg.NatsURL,
			nats.Name("report-notifier-"+logger.GetInstanceID()),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			log.Error("failed to connect to NATS", slog.String("error", err.Error()))
			os.Exit(1)
		}

		subscriber = reports.NewNATSSubscriber(natsConn, cfg.NatsSubject, cfg.NatsQueueGroup, service, appLogger)
		if err := subscriber.Start(); err != nil {
			log.Error("failed to start nats trigger", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	if cfg.FirestoreWatchEnabled {
		watches := make([]reports.CollectionWatch, 0, len(cfg.Notifications.CollectionWatches))
		for _, w := range cfg.Notifications.CollectionWatches {
			watches = append(watches, reports.CollectionWatch{Collection: w.Collection, Status: w.Status})
		}

		watcher := reports.NewCollectionWatcher(firebaseClient.Firestore, watches, service, appLogger)
		go func() {
			defer close(watchDone)
			watcher.Run(watchCtx)
		}()
	} else {
		close(watchDone)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("report notifier listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	if subscriber != nil {
		if err := subscriber.Stop(); err != nil {
			log.Warn("nats trigger did not stop cleanly", slog.String("error", err.Error()))
		}
	}

	stopWatch()
	select {
	case <-watchDone:
	case <-shutdownCtx.Done():
		log.Warn("firestore trigger still draining at shutdown deadline")
	}

	if natsConn != nil {
		natsConn.Close()
	}

	if err := firebaseClient.Close(); err != nil {
		log.Warn("failed to close firestore client", slog.String("error", err.Error()))
	}

	log.Info("server exited")
}
