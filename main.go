package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"techfest-registration/config"
	"techfest-registration/handlers"
	"techfest-registration/models"
	"techfest-registration/notify"
	"techfest-registration/services"
	"techfest-registration/utils"
	"techfest-registration/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/session"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	profileService := services.NewProfileService(db)

	// `techfest set-password <username>` stores STAFF_PASSWORD for the CSV login.
	if len(os.Args) == 3 && os.Args[1] == "set-password" {
		setStaffPassword(profileService, os.Args[2])
		return
	}

	var notifier services.Notifier = notify.LogNotifier{}
	if cfg.ResendAPIKey != "" {
		notifier = notify.NewResendNotifier(cfg.ResendAPIKey, cfg.MailFrom, cfg.FrontendURL)
	} else {
		log.Println("⚠️  RESEND_API_KEY not set, invitation emails are only logged")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var images services.ImageStore
	if cfg.R2.Enabled() {
		store, err := utils.NewR2Store(ctx, cfg.R2)
		if err != nil {
			log.Fatal("failed to initialize R2 client: ", err)
		}
		images = store
	} else {
		log.Println("⚠️  R2 not configured, event image uploads are disabled")
	}

	teamService := services.NewTeamService(db, cfg.PublicIDLength, notifier)
	registrationService := services.NewRegistrationService(db, cfg.PublicIDLength, cfg.ReservedInstitute)
	eventService := services.NewEventService(db, images)
	exportService := services.NewExportService(registrationService)

	cleanup, err := teamService.StartInvitationCleanup(cfg.CleanupInterval, cfg.RejectedInvitationRetention)
	if err != nil {
		log.Fatal("failed to start invitation cleanup: ", err)
	}

	if cfg.ProfileSyncURL != "" {
		workers.NewProfileSyncWorker(db, cfg.ProfileSyncURL, cfg.ProfileSyncPath, cfg.ProfileSyncToken, cfg.ProfileSyncInterval).Start(ctx)
	} else {
		log.Println("⚠️  PROFILE_SYNC_URL not set, profile sync worker disabled")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 8 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Content-Disposition, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	sessions := session.New(session.Config{
		Expiration:     12 * time.Hour,
		KeyLookup:      "cookie:" + cfg.SessionCookie,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	})

	handlers.SetupRoutes(app, handlers.Services{
		Profiles:      profileService,
		Teams:         teamService,
		Registrations: registrationService,
		Events:        eventService,
		Export:        exportService,
	}, []byte(cfg.JWTSigningKey), sessions)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := cleanup.Shutdown(); err != nil {
		log.Printf("[SCHEDULER] shutdown: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}

func setStaffPassword(profiles *services.ProfileService, username string) {
	p, err := profiles.ByUsername(username)
	if err != nil {
		log.Fatal(err)
	}
	if !p.IsStaff {
		log.Fatalf("%s is not a staff member", username)
	}
	if err := profiles.SetPassword(p.ID, os.Getenv("STAFF_PASSWORD")); err != nil {
		log.Fatal(err)
	}
	log.Printf("✅ password updated for %s", username)
}
