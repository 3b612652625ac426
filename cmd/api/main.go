package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/aegis-sec/aegis/internal/auth"
	"github.com/aegis-sec/aegis/internal/background"
	"github.com/aegis-sec/aegis/internal/config"
	"github.com/aegis-sec/aegis/internal/database"
	"github.com/aegis-sec/aegis/internal/handlers"
	"github.com/aegis-sec/aegis/internal/middleware"
	"github.com/aegis-sec/aegis/internal/repositories"
	"github.com/aegis-sec/aegis/internal/routes"
	"github.com/aegis-sec/aegis/internal/services"
	pkghttp "github.com/aegis-sec/aegis/pkg/http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 1*time.Minute)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Redis backs the per-address strike window
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	pingCancel()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	blockedRepo := repositories.NewBlockedAddressRepository(db)
	codeRepo := repositories.NewVerificationCodeRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	// Event log: every guarded operation writes through this service
	eventService := services.NewSecurityEventService(eventRepo, logger)

	// Delivery channels
	emailSender, err := services.NewAWSSESCodeSender(cfg.Delivery.AWSRegion, cfg.Delivery.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email sender", slog.Any("error", err))
		os.Exit(1)
	}
	smsSender, err := services.NewAWSSNSCodeSender(cfg.Delivery.AWSRegion, logger)
	if err != nil {
		logger.Error("failed to initialize sms sender", slog.Any("error", err))
		os.Exit(1)
	}

	// Core abuse-prevention services
	lockoutService := services.NewLockoutService(accountRepo, eventService, services.LockoutConfig{
		MaxFailedAttempts: cfg.Policy.MaxFailedLogins,
		LockDuration:      cfg.Policy.AccountLockFor,
	}, logger)

	ipGuardService := services.NewIPGuardService(rdb, blockedRepo, eventService, services.IPGuardConfig{
		FailureThreshold: cfg.Policy.IPFailureThreshold,
		Window:           cfg.Policy.IPWindow,
	}, logger)

	verificationConfig := services.DefaultVerificationConfig()
	verificationConfig.CodeTTL = cfg.Policy.CodeTTL
	verificationService := services.NewVerificationService(codeRepo, emailSender, smsSender, eventService, verificationConfig, logger)

	backupCodeService := services.NewBackupCodeService(accountRepo, eventService, logger)

	totpManager := auth.NewTOTPManager(cfg.Delivery.TOTPIssuer)
	twoFactorService := services.NewTwoFactorService(accountRepo, totpManager, backupCodeService, verificationService, eventService, logger)

	equalizer := auth.NewResponseEqualizer(auth.TimingConfig{
		MinResponseMs: cfg.Policy.MinResponseMs,
		JitterMs:      cfg.Policy.ResponseJitterMs,
	})

	loginService := services.NewLoginService(
		accountRepo,
		lockoutService,
		ipGuardService,
		attemptRepo,
		eventService,
		equalizer,
		logger,
	)

	// Admin surface
	tokenManager := auth.NewAdminTokenManager(cfg.Admin.JWTSecret, cfg.Admin.TokenExpiry)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	loginHandler := handlers.NewLoginHandler(loginService, ipConfig)
	verificationHandler := handlers.NewVerificationHandler(verificationService)
	twoFactorHandler := handlers.NewTwoFactorHandler(twoFactorService, backupCodeService)
	adminHandler := handlers.NewAdminHandler(lockoutService, ipGuardService, twoFactorService, eventService)

	// Cleanup worker for aged attempts and dead codes
	cleanupManager := background.NewCleanupManager(
		attemptRepo,
		codeRepo,
		logger,
		cfg.Policy.CleanupInterval,
		cfg.Policy.AttemptRetention,
	)

	// Setup router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.SecurityHeaders(cfg.Server.Env))
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(
		router,
		loginHandler,
		verificationHandler,
		twoFactorHandler,
		adminHandler,
		tokenManager,
		routes.DefaultRateLimits(),
	)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
