package handlers

import (
	"techfest-registration/middleware"
	"techfest-registration/models"
	"techfest-registration/services"
	"techfest-registration/utils"

	"github.com/gofiber/fiber/v2"
)

type labelRequest struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description"`
}

type roleRequest struct {
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=organizer volunteer"`
}

// SetupEventRoutes wires the event catalog. Reads are public, writes are staff only.
func SetupEventRoutes(app *fiber.App, events *services.EventService) {
	staff := middleware.RequireStaff()

	app.Get("/events", func(c *fiber.Ctx) error {
		list, err := events.List(services.EventFilter{
			Type:     c.Query("type"),
			Tag:      c.Query("tag"),
			Category: c.Query("category"),
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	createEvent := func(eventType string) fiber.Handler {
		return func(c *fiber.Ctx) error {
			var in services.EventInput
			if err := bind(c, &in); err != nil {
				return respondError(c, err)
			}
			e, err := events.Create(middleware.CurrentProfile(c), eventType, in)
			if err != nil {
				return respondError(c, err)
			}
			return c.Status(fiber.StatusCreated).JSON(e)
		}
	}
	app.Post("/events/solo", staff, createEvent(models.EventTypeSolo))
	app.Post("/events/team", staff, createEvent(models.EventTypeTeam))

	app.Get("/events/:id", func(c *fiber.Ctx) error {
		e, err := events.Get(c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(e)
	})

	app.Put("/events/:id", staff, func(c *fiber.Ctx) error {
		var in services.EventInput
		if err := bind(c, &in); err != nil {
			return respondError(c, err)
		}
		e, err := events.Update(middleware.CurrentProfile(c), c.Params("id"), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(e)
	})

	app.Delete("/events/:id", staff, func(c *fiber.Ctx) error {
		if err := events.Delete(c.UserContext(), middleware.CurrentProfile(c), c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "event deleted"})
	})

	app.Post("/events/:id/images", staff, func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return respondError(c, invalidRequest("file is required"))
		}
		contentType, err := utils.ImageContentType(fileHeader)
		if err != nil {
			return respondError(c, invalidRequest(err.Error()))
		}
		file, err := fileHeader.Open()
		if err != nil {
			return respondError(c, invalidRequest("failed to open file"))
		}
		defer file.Close()

		img, err := events.UploadImage(c.UserContext(), middleware.CurrentProfile(c), c.Params("id"),
			c.FormValue("purpose", models.ImagePurposePicture), fileHeader.Filename, contentType, file, fileHeader.Size)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(img)
	})

	app.Get("/events/:id/roles", staff, func(c *fiber.Ctx) error {
		roles, err := events.Roles(c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(roles)
	})

	app.Post("/events/:id/roles", staff, func(c *fiber.Ctx) error {
		var req roleRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		role, err := events.AssignRole(middleware.CurrentProfile(c), c.Params("id"), req.Username, req.Role)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(role)
	})

	app.Delete("/events/:id/roles/:username", staff, func(c *fiber.Ctx) error {
		if err := events.RemoveRole(middleware.CurrentProfile(c), c.Params("id"), usernameParam(c)); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "role removed"})
	})

	app.Get("/tags", func(c *fiber.Ctx) error {
		tags, err := events.Tags()
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(tags)
	})

	app.Post("/tags", staff, func(c *fiber.Ctx) error {
		var req labelRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		tag, err := events.CreateTag(middleware.CurrentProfile(c), req.Name, req.Description)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(tag)
	})

	app.Get("/categories", func(c *fiber.Ctx) error {
		cats, err := events.Categories()
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(cats)
	})

	app.Post("/categories", staff, func(c *fiber.Ctx) error {
		var req labelRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		cat, err := events.CreateCategory(middleware.CurrentProfile(c), req.Name, req.Description)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(cat)
	})
}
