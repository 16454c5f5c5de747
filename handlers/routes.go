package handlers

import (
	"techfest-registration/middleware"
	"techfest-registration/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
)

// Services bundles everything the HTTP layer talks to.
type Services struct {
	Profiles      *services.ProfileService
	Teams         *services.TeamService
	Registrations *services.RegistrationService
	Events        *services.EventService
	Export        *services.ExportService
}

// SetupRoutes installs authentication and every route group on app.
func SetupRoutes(app *fiber.App, svc Services, signingKey []byte, sessions *session.Store) {
	app.Use(middleware.Authenticate(middleware.AuthConfig{
		SigningKey: signingKey,
		Profiles:   svc.Profiles,
		Sessions:   sessions,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupEventRoutes(app, svc.Events)
	SetupRegistrationRoutes(app, svc.Registrations)
	SetupTeamRoutes(app, svc.Teams)
	SetupCSVRoutes(app, svc.Profiles, svc.Export, sessions)
}
