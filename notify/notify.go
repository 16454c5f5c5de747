// Package notify delivers team invitation notices.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"net/url"
	"strings"

	"techfest-registration/models"

	"github.com/resend/resend-go/v2"
)

var invitationTmpl = template.Must(template.New("invitation").Parse(
	`<p>Hi {{.Name}},</p>
<p><strong>{{.Leader}}</strong> invited you to join the team <strong>{{.Team}}</strong>.</p>
<p><a href="{{.Link}}">Review the invitation</a></p>`))

type invitationData struct {
	Name   string
	Leader string
	Team   string
	Link   string
}

func renderInvitation(frontendURL string, team *models.Team, invitee *models.Profile) (string, string, error) {
	name := invitee.FirstName
	if name == "" {
		name = invitee.Username
	}
	link := strings.TrimRight(frontendURL, "/") + "/invitations/" + url.PathEscape(team.PublicID)
	var buf bytes.Buffer
	err := invitationTmpl.Execute(&buf, invitationData{
		Name:   name,
		Leader: team.Leader.Username,
		Team:   team.Name,
		Link:   link,
	})
	if err != nil {
		return "", "", fmt.Errorf("render invitation: %w", err)
	}
	subject := fmt.Sprintf("You have been invited to join %s", team.Name)
	return subject, buf.String(), nil
}

// ResendNotifier emails invitations through the Resend API.
type ResendNotifier struct {
	client      *resend.Client
	from        string
	frontendURL string
}

func NewResendNotifier(apiKey, from, frontendURL string) *ResendNotifier {
	return &ResendNotifier{
		client:      resend.NewClient(apiKey),
		from:        from,
		frontendURL: frontendURL,
	}
}

func (n *ResendNotifier) TeamInvitation(ctx context.Context, team *models.Team, invitee *models.Profile) error {
	if invitee.Email == "" {
		return fmt.Errorf("%s has no email address", invitee.Username)
	}
	subject, html, err := renderInvitation(n.frontendURL, team, invitee)
	if err != nil {
		return err
	}
	sent, err := n.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{invitee.Email},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}
	log.Printf("[MAIL] invitation to %s sent (id=%s)", invitee.Username, sent.Id)
	return nil
}

// LogNotifier only logs invitations. Used when no mail provider is configured.
type LogNotifier struct{}

func (LogNotifier) TeamInvitation(_ context.Context, team *models.Team, invitee *models.Profile) error {
	log.Printf("[MAIL] (not sent) %s invited to %q", invitee.Username, team.Name)
	return nil
}
