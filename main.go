package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smokeFreeAPI/config"
	"smokeFreeAPI/handlers"
	"smokeFreeAPI/internal/database"
	"smokeFreeAPI/internal/logger"
	"smokeFreeAPI/internal/notification"
	"smokeFreeAPI/middleware"
	"smokeFreeAPI/services"

	_ "net/http/pprof"
)

var (
	cfg                 *config.Server
	dbPool              *pgxpool.Pool
	userService         *services.UserService
	eventService        *services.EventService
	planService         *services.PlanService
	settingsService     *services.SettingsService
	achievementService  *services.AchievementService
	progressService     *services.ProgressService
	notificationService *services.NotificationService
)

func init() {
	var err error
	cfg, err = config.LoadServer()
	if err != nil {
		logger.Fatal("Failed to load config", "err", err)
	}

	if err := logger.Init(logger.Config{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		JSON:  cfg.LogJSON,
	}); err != nil {
		logger.Fatal("Failed to initialize logger", "err", err)
	}

	if cfg.ClerkSecretKey != "" {
		clerk.SetKey(cfg.ClerkSecretKey)
		logger.Info("Clerk initialized successfully")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbPool, err = database.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	if err := database.Migrate(ctx, dbPool); err != nil {
		logger.Fatal("Failed to apply schema", "err", err)
	}
	logger.Info("Database ready")

	notificationService = services.NewNotificationService(dbPool, cfg.DispatchWorkers)
	userService = services.NewUserService(dbPool)
	eventService = services.NewEventService(dbPool)
	planService = services.NewPlanService(dbPool)
	settingsService = services.NewSettingsService(dbPool)
	achievementService = services.NewAchievementService(dbPool)
	progressService = services.NewProgressService(planService, settingsService, eventService, achievementService, notificationService)

	fcmService, err := notification.NewFCMService(ctx, cfg.FCMServiceAccountJSON, cfg.FCMCredentialsFile)
	if err != nil {
		logger.Warn("Could not initialize FCM, pushes will only be logged", "err", err)
		notificationService.Dispatcher().SetPushProvider(&services.MockPushProvider{})
	} else {
		notificationService.Dispatcher().SetPushProvider(fcmService)
		logger.Info("FCM Push Provider initialized successfully")
	}

	middleware.InitPrometheus(prometheus.DefaultRegisterer)
	services.RegisterMetrics(prometheus.DefaultRegisterer)
}

func authVerifier() middleware.TokenVerifier {
	var verifiers []middleware.TokenVerifier
	if cfg.ClerkSecretKey != "" {
		verifiers = append(verifiers, middleware.VerifyClerkToken)
	}
	if cfg.DevJWTSecret != "" {
		logger.Warn("DEV_JWT_SECRET is set, accepting HS256 development tokens")
		verifiers = append(verifiers, middleware.HS256Verifier([]byte(cfg.DevJWTSecret)))
	}
	return middleware.ChainVerifiers(verifiers...)
}

func main() {
	defer func() {
		logger.Info("Closing database connection pool...")
		dbPool.Close()
	}()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthHandler := handlers.NewHealthHandler(dbPool)
	eventHandler := handlers.NewEventHandler(userService, eventService, progressService)
	planHandler := handlers.NewPlanHandler(userService, planService, settingsService)
	settingsHandler := handlers.NewSettingsHandler(userService, settingsService)
	progressHandler := handlers.NewProgressHandler(userService, progressService, settingsService)
	notificationHandler := handlers.NewNotificationHandler(userService, notificationService)

	r := mux.NewRouter()

	standardRouter := r.PathPrefix("/").Subrouter()

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	go limiter.CleanupVisitors(rootCtx)

	standardRouter.Use(middleware.MonitorMiddleware)

	// devices poll liveness to decide whether to drain; keep it outside the limiter
	standardRouter.HandleFunc("/health/live", healthHandler.Live).Methods("GET")

	limited := standardRouter.PathPrefix("/").Subrouter()
	limited.Use(limiter.Middleware)

	limited.Handle("/metrics", middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass)(promhttp.Handler()))
	limited.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(cfg.PprofSecret)(http.DefaultServeMux))
	limited.HandleFunc("/health", healthHandler.Ready).Methods("GET")

	if cfg.ClerkWebhookSecret != "" {
		webhookHandler, err := handlers.NewWebhookHandler(userService, cfg.ClerkWebhookSecret)
		if err != nil {
			logger.Fatal("Invalid CLERK_WEBHOOK_SECRET", "err", err)
		}
		limited.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")
	} else {
		logger.Warn("CLERK_WEBHOOK_SECRET not set, /webhooks/clerk disabled")
	}

	api := limited.PathPrefix("/api/v1").Subrouter()

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(authVerifier()))

	protected.HandleFunc("/events", eventHandler.CreateCountEvent).Methods("POST")
	protected.HandleFunc("/events", eventHandler.ListCountEvents).Methods("GET")
	protected.HandleFunc("/events/{id}", eventHandler.DeleteCountEvent).Methods("DELETE")
	protected.HandleFunc("/journal", eventHandler.CreateJournalEntry).Methods("POST")
	protected.HandleFunc("/journal", eventHandler.ListJournalEntries).Methods("GET")

	protected.HandleFunc("/plan", planHandler.GetPlan).Methods("GET")
	protected.HandleFunc("/plan", planHandler.UpdatePlan).Methods("PUT")
	protected.HandleFunc("/plan/target", planHandler.GetTarget).Methods("GET")
	protected.HandleFunc("/plan/schedule", planHandler.GetSchedule).Methods("GET")

	protected.HandleFunc("/settings", settingsHandler.GetSettings).Methods("GET")
	protected.HandleFunc("/settings", settingsHandler.UpdateSettings).Methods("PUT")

	protected.HandleFunc("/progress", progressHandler.GetProgress).Methods("GET")
	protected.HandleFunc("/achievements", progressHandler.GetAchievements).Methods("GET")
	protected.HandleFunc("/punishment/dismiss", progressHandler.DismissPunishment).Methods("POST")

	protected.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	protected.HandleFunc("/notifications/{id}/read", notificationHandler.MarkAsRead).Methods("POST")
	protected.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := ":" + cfg.Port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Error starting server", "err", err)
		}
	}()

	<-rootCtx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "err", err)
	}
	notificationService.Dispatcher().Stop()

	logger.Info("Server shutdown complete")
}
