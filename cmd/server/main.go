package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/adapter/auth"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/adapter/payment"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/adapter/storage"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/adapter/store"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/handler"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/middleware"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/realtime"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/service"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/session"
	"github.com/gtextsoft/LandlordNoAgent-sub001/pkg/config"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting LandlordNoAgent",
		"port", cfg.Port,
		"currency", cfg.DefaultCurrency,
		"upload_dir", cfg.UploadDir,
	)

	ctx := context.Background()

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	if err := pgStore.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := seedAdmin(ctx, pgStore, cfg); err != nil {
		slog.Error("failed to seed admin user", "error", err)
		os.Exit(1)
	}

	analytics := store.NewAnalyticsStore(pgStore)

	// ── Adapters ─────────────────────────────────────────────────────────
	authBackend := auth.NewLocalBackend(pgStore, auth.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  time.Duration(cfg.AccessTokenTTL) * time.Minute,
		RefreshTTL: time.Duration(cfg.RefreshTokenTTL) * time.Hour,
	})

	files, err := storage.NewDiskStore(cfg.UploadDir)
	if err != nil {
		slog.Error("failed to prepare upload directory", "error", err)
		os.Exit(1)
	}

	declineAbove, err := decimal.NewFromString(cfg.PaymentDeclineAbove)
	if err != nil {
		slog.Error("invalid PAYMENT_DECLINE_ABOVE", "value", cfg.PaymentDeclineAbove, "error", err)
		os.Exit(1)
	}
	gateway := payment.NewSimulatedGateway(declineAbove, time.Duration(cfg.PaymentSettleDelay)*time.Millisecond)

	// ── Session Manager ──────────────────────────────────────────────────
	manager := session.NewManager(authBackend, pgStore, pgStore,
		time.Duration(cfg.ResolveTimeout)*time.Second)
	manager.Start(ctx)

	bus := realtime.NewBus()

	// ── Services ─────────────────────────────────────────────────────────
	listingService := service.NewListingService(pgStore, files, bus, cfg.DefaultCurrency)
	applicationService := service.NewApplicationService(pgStore, bus)
	paymentService := service.NewPaymentService(pgStore, gateway, bus)
	messageService := service.NewMessageService(pgStore, bus)

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:     cfg.AppName,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: the event stream holds its response open for the
		// lifetime of the session.
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Audit middleware (logs all requests)
	app.Use(middleware.AuditMiddleware(pgStore))

	// ── Public Routes ────────────────────────────────────────────────────
	authHandler := handler.NewAuthHandler(authBackend, pgStore, manager)
	listingHandler := handler.NewListingHandler(listingService, analytics)

	public := app.Group("/api/v1")
	authHandler.Register(public)
	listingHandler.Register(public)

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Protected Routes ─────────────────────────────────────────────────
	api := app.Group("/api/v1", middleware.SessionMiddleware(manager))

	authHandler.RegisterProtected(api)

	messageHandler := handler.NewMessageHandler(messageService, bus)
	messageHandler.Register(api)

	applicationHandler := handler.NewApplicationHandler(applicationService)
	paymentHandler := handler.NewPaymentHandler(paymentService)

	renter := api.Group("/renter", middleware.RequireRole(domain.RoleRenter))
	applicationHandler.RegisterRenter(renter)
	paymentHandler.RegisterRenter(renter)

	landlord := api.Group("/landlord", middleware.RequireRole(domain.RoleLandlord))
	listingHandler.RegisterLandlord(landlord)
	applicationHandler.RegisterLandlord(landlord)
	paymentHandler.RegisterLandlord(landlord)

	admin := api.Group("/admin", middleware.RequireRole(domain.RoleAdmin))
	adminHandler := handler.NewAdminHandler(pgStore, analytics, listingService, paymentService, manager)
	adminHandler.Register(admin)

	auditHandler := handler.NewAuditHandler(pgStore)
	auditHandler.Register(admin)

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// seedAdmin creates the bootstrap admin account when ADMIN_EMAIL and
// ADMIN_PASSWORD are set and no such user exists yet. Admin is never a
// signup role, so the first admin has to come from configuration.
func seedAdmin(ctx context.Context, pgStore *store.PostgresStore, cfg *config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	_, err := pgStore.GetAuthUserByEmail(ctx, cfg.AdminEmail)
	if err == nil {
		return nil // already seeded
	}
	if !errors.Is(err, port.ErrUserNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user, err := pgStore.CreateAuthUser(ctx, cfg.AdminEmail, string(hash), domain.SignupMetadata{
		Role:     domain.RoleAdmin,
		FullName: cfg.AdminName,
	})
	if err != nil {
		return err
	}

	if _, err := pgStore.CreateProfile(ctx, &domain.Profile{
		ID:       user.ID,
		Email:    user.Email,
		FullName: cfg.AdminName,
		Role:     string(domain.RoleAdmin),
	}, domain.RoleAdmin); err != nil {
		return err
	}

	slog.Info("seeded admin user", "email", cfg.AdminEmail)
	return nil
}
