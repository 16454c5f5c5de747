package handlers

import (
	"bytes"
	"fmt"
	"log"

	"techfest-registration/middleware"
	"techfest-registration/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SetupCSVRoutes wires the staff login and registration exports.
func SetupCSVRoutes(app *fiber.App, profiles *services.ProfileService, export *services.ExportService, sessions *session.Store) {
	app.Post("/csv/login", func(c *fiber.Ctx) error {
		var req loginRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		p, err := profiles.AuthenticateStaff(req.Username, req.Password)
		if err != nil {
			return respondError(c, err)
		}
		sess, err := sessions.Get(c)
		if err != nil {
			return respondError(c, fmt.Errorf("load session: %w", err))
		}
		if err := sess.Regenerate(); err != nil {
			return respondError(c, fmt.Errorf("regenerate session: %w", err))
		}
		sess.Set(middleware.SessionProfileKey, p.ID)
		if err := sess.Save(); err != nil {
			return respondError(c, fmt.Errorf("save session: %w", err))
		}
		log.Printf("[CSV] %s logged in", p.Username)
		return c.JSON(fiber.Map{"username": p.Username})
	})

	app.Post("/csv/logout", func(c *fiber.Ctx) error {
		sess, err := sessions.Get(c)
		if err != nil {
			return respondError(c, fmt.Errorf("load session: %w", err))
		}
		if err := sess.Destroy(); err != nil {
			return respondError(c, fmt.Errorf("destroy session: %w", err))
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Get("/csv/event/:id/registrations", middleware.RequireStaff(), func(c *fiber.Ctx) error {
		var buf bytes.Buffer
		e, err := export.WriteEventRegistrations(&buf, middleware.CurrentProfile(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		c.Attachment(e.PublicID + "-registrations.csv")
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		return c.Send(buf.Bytes())
	})
}
