package handlers

import (
	"log"

	"techfest-registration/middleware"
	"techfest-registration/models"
	"techfest-registration/services"

	"github.com/gofiber/fiber/v2"
)

type teamRequest struct {
	Name string `json:"name" validate:"required,max=20"`
}

type inviteRequest struct {
	Username string `json:"username" validate:"required"`
}

// TeamResponse is the public shape of a team.
type TeamResponse struct {
	TeamID   string   `json:"teamId"`
	Name     string   `json:"name"`
	Leader   string   `json:"leader"`
	Members  []string `json:"members"`
	Invitees []string `json:"invitees"`
	Events   []string `json:"events"`
	Size     int      `json:"size"`
	Ready    bool     `json:"ready"`
}

// InvitationResponse is an invitation as seen by its invitee.
type InvitationResponse struct {
	TeamID string `json:"teamId"`
	Name   string `json:"name"`
	Leader string `json:"leader"`
	Status string `json:"status"`
}

func usernames(ms []models.TeamMember) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Profile.Username)
	}
	return out
}

func teamResponse(t *models.Team, events []models.Event) TeamResponse {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.PublicID)
	}
	return TeamResponse{
		TeamID:   t.PublicID,
		Name:     t.Name,
		Leader:   t.Leader.Username,
		Members:  usernames(t.Members()),
		Invitees: usernames(t.Invitees()),
		Events:   ids,
		Size:     t.MemberCount(),
		Ready:    t.Ready(),
	}
}

func invitationResponse(m *models.TeamMember) InvitationResponse {
	r := InvitationResponse{Status: m.Status()}
	if m.Team != nil {
		r.TeamID = m.Team.PublicID
		r.Name = m.Team.Name
		r.Leader = m.Team.Leader.Username
	}
	return r
}

// SetupTeamRoutes wires team management and invitations.
func SetupTeamRoutes(app *fiber.App, teams *services.TeamService) {
	auth := middleware.RequireAuth()

	respondTeam := func(c *fiber.Ctx, status int, t *models.Team) error {
		events, err := teams.EventsOf(t)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(status).JSON(teamResponse(t, events))
	}

	app.Get("/teams", auth, func(c *fiber.Ctx) error {
		list, err := teams.List(middleware.CurrentProfile(c))
		if err != nil {
			return respondError(c, err)
		}
		out := make([]TeamResponse, 0, len(list))
		for i := range list {
			events, err := teams.EventsOf(&list[i])
			if err != nil {
				return respondError(c, err)
			}
			out = append(out, teamResponse(&list[i], events))
		}
		return c.JSON(out)
	})

	app.Post("/teams", auth, func(c *fiber.Ctx) error {
		var req teamRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		t, err := teams.Create(middleware.CurrentProfile(c), req.Name)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(teamResponse(t, nil))
	})

	app.Get("/teams/:teamId", auth, func(c *fiber.Ctx) error {
		t, err := teams.Get(middleware.CurrentProfile(c), c.Params("teamId"))
		if err != nil {
			return respondError(c, err)
		}
		return respondTeam(c, fiber.StatusOK, t)
	})

	app.Put("/teams/:teamId", auth, func(c *fiber.Ctx) error {
		var req teamRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		t, err := teams.Rename(middleware.CurrentProfile(c), c.Params("teamId"), req.Name)
		if err != nil {
			return respondError(c, err)
		}
		return respondTeam(c, fiber.StatusOK, t)
	})

	app.Delete("/teams/:teamId", auth, func(c *fiber.Ctx) error {
		if err := teams.Delete(middleware.CurrentProfile(c), c.Params("teamId")); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "team deleted"})
	})

	app.Post("/teams/:teamId/invitations", auth, func(c *fiber.Ctx) error {
		var req inviteRequest
		if err := bind(c, &req); err != nil {
			return respondError(c, err)
		}
		m, err := teams.Invite(c.UserContext(), middleware.CurrentProfile(c), c.Params("teamId"), req.Username)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"teamId":   m.Team.PublicID,
			"username": m.Profile.Username,
			"status":   m.Status(),
		})
	})

	app.Delete("/teams/:teamId/invitations/:username", auth, func(c *fiber.Ctx) error {
		if err := teams.WithdrawInvitation(middleware.CurrentProfile(c), c.Params("teamId"), usernameParam(c)); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "invitation withdrawn"})
	})

	app.Delete("/teams/:teamId/members/:username", auth, func(c *fiber.Ctx) error {
		if err := teams.RemoveMember(middleware.CurrentProfile(c), c.Params("teamId"), usernameParam(c)); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"message": "member removed"})
	})

	// Invitations addressed to the caller.
	app.Get("/users/:username/invitations", auth, func(c *fiber.Ctx) error {
		list, err := teams.Invitations(middleware.CurrentProfile(c), usernameParam(c))
		if err != nil {
			return respondError(c, err)
		}
		out := make([]InvitationResponse, 0, len(list))
		for i := range list {
			out = append(out, invitationResponse(&list[i]))
		}
		return c.JSON(out)
	})

	app.Get("/users/:username/invitations/:teamId", auth, func(c *fiber.Ctx) error {
		m, err := teams.Invitation(middleware.CurrentProfile(c), usernameParam(c), c.Params("teamId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(invitationResponse(m))
	})

	app.Put("/users/:username/invitations/:teamId/accept", auth, func(c *fiber.Ctx) error {
		m, err := teams.AcceptInvitation(middleware.CurrentProfile(c), usernameParam(c), c.Params("teamId"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(invitationResponse(m))
	})

	app.Put("/users/:username/invitations/:teamId/reject", auth, func(c *fiber.Ctx) error {
		m, err := teams.RejectInvitation(middleware.CurrentProfile(c), usernameParam(c), c.Params("teamId"))
		if err != nil {
			return respondError(c, err)
		}
		log.Printf("[TEAMS] %s rejected invitation to %s", usernameParam(c), c.Params("teamId"))
		return c.JSON(invitationResponse(m))
	})
}
