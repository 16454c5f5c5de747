package handlers

import (
	"techfest-registration/middleware"
	"techfest-registration/services"

	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	TeamID string `json:"teamId"`
}

type updateRegistrationRequest struct {
	IsComplete  *bool `json:"is_complete"`
	IsConfirmed *bool `json:"is_confirmed"`
}

// RegistrationResponse describes a solo or team registration.
type RegistrationResponse struct {
	RegistrationID string  `json:"registrationId"`
	Event          string  `json:"event"`
	EventTitle     string  `json:"eventTitle"`
	Type           string  `json:"type"`
	Username       string  `json:"username,omitempty"`
	TeamID         string  `json:"teamId,omitempty"`
	TeamName       string  `json:"teamName,omitempty"`
	IsComplete     bool    `json:"is_complete"`
	IsConfirmed    bool    `json:"is_confirmed"`
	IsReserved     bool    `json:"is_reserved"`
	Status         string  `json:"status"`
	Fee            float64 `json:"fee"`
}

func registrationResponse(r *services.Registration) RegistrationResponse {
	state := r.State()
	out := RegistrationResponse{
		RegistrationID: r.PublicID(),
		Event:          r.Event.PublicID,
		EventTitle:     r.Event.Title,
		Type:           r.Event.Type,
		IsComplete:     state.IsComplete,
		IsConfirmed:    state.IsConfirmed,
		IsReserved:     state.IsReserved,
		Status:         state.Status(),
		Fee:            state.Fee(r.Event),
	}
	if r.Solo != nil {
		out.Username = r.Solo.Profile.Username
	} else {
		out.TeamID = r.Team.Team.PublicID
		out.TeamName = r.Team.Team.Name
	}
	return out
}

func registrationList(regs []services.Registration) []RegistrationResponse {
	out := make([]RegistrationResponse, 0, len(regs))
	for i := range regs {
		out = append(out, registrationResponse(&regs[i]))
	}
	return out
}

// SetupRegistrationRoutes wires event sign-up and staff review of registrations.
func SetupRegistrationRoutes(app *fiber.App, registrations *services.RegistrationService) {
	auth := middleware.RequireAuth()

	app.Post("/events/:id/registrations", auth, func(c *fiber.Ctx) error {
		var req registerRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		reg, err := registrations.Register(middleware.CurrentProfile(c), c.Params("id"), req.TeamID)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(registrationResponse(reg))
	})

	app.Delete("/events/:id/registrations", auth, func(c *fiber.Ctx) error {
		deleted, err := registrations.Unregister(middleware.CurrentProfile(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if !deleted {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(fiber.Map{"message": "registration deleted"})
	})

	app.Get("/events/:id/registrations/me", auth, func(c *fiber.Ctx) error {
		reg, err := registrations.Mine(middleware.CurrentProfile(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if reg == nil {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(registrationResponse(reg))
	})

	app.Get("/events/:id/registrations", auth, func(c *fiber.Ctx) error {
		regs, err := registrations.ListForEvent(middleware.CurrentProfile(c), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(registrationList(regs))
	})

	app.Patch("/registrations/:publicId", auth, func(c *fiber.Ctx) error {
		var req updateRegistrationRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		reg, err := registrations.Update(middleware.CurrentProfile(c), c.Params("publicId"), req.IsComplete, req.IsConfirmed)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(registrationResponse(reg))
	})

	app.Get("/users/:username/registrations", auth, func(c *fiber.Ctx) error {
		regs, err := registrations.ForProfile(middleware.CurrentProfile(c), usernameParam(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(registrationList(regs))
	})
}
