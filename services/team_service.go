package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"techfest-registration/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxTeamNameLength = 20

// Notifier delivers invitation notices. Failures never fail the request.
type Notifier interface {
	TeamInvitation(ctx context.Context, team *models.Team, invitee *models.Profile) error
}

type TeamService struct {
	DB             *gorm.DB
	PublicIDLength int
	Notifier       Notifier
}

func NewTeamService(db *gorm.DB, publicIDLength int, notifier Notifier) *TeamService {
	return &TeamService{DB: db, PublicIDLength: publicIDLength, Notifier: notifier}
}

// preloadTeam loads everything the derived team fields need.
func preloadTeam(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Leader.Institute").
		Preload("Memberships.Profile.Institute")
}

func loadTeam(tx *gorm.DB, publicID string) (*models.Team, error) {
	var team models.Team
	if err := preloadTeam(tx).First(&team, "public_id = ?", publicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("team does not exist")
		}
		return nil, fmt.Errorf("fetch team: %w", err)
	}
	return &team, nil
}

// lockTeamRow holds the team's row lock until tx ends, so membership changes
// and team registrations run one at a time.
func lockTeamRow(tx *gorm.DB, publicID string) error {
	var row models.Team
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		First(&row, "public_id = ?", publicID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("team does not exist")
		}
		return fmt.Errorf("lock team: %w", err)
	}
	return nil
}

// lockTeam is loadTeam under the team's row lock.
func lockTeam(tx *gorm.DB, publicID string) (*models.Team, error) {
	if err := lockTeamRow(tx, publicID); err != nil {
		return nil, err
	}
	return loadTeam(tx, publicID)
}

func teamRegistered(tx *gorm.DB, teamID string) (bool, error) {
	var count int64
	if err := tx.Model(&models.TeamEventRegistration{}).Where("team_id = ?", teamID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count team registrations: %w", err)
	}
	return count > 0, nil
}

func validTeamName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid(`required field "name" not provided`)
	}
	if len([]rune(name)) > maxTeamNameLength {
		return "", invalid("team name can be at most %d characters", maxTeamNameLength)
	}
	return name, nil
}

func (s *TeamService) nameTaken(tx *gorm.DB, name, exceptID string) (bool, error) {
	var count int64
	q := tx.Model(&models.Team{}).Where("name = ?", name)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check team name: %w", err)
	}
	return count > 0, nil
}

// Create makes leader the owner of a new team with a unique name.
func (s *TeamService) Create(leader *models.Profile, name string) (*models.Team, error) {
	name, err := validTeamName(name)
	if err != nil {
		return nil, err
	}
	taken, err := s.nameTaken(s.DB, name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, invalid("team name %q is already taken", name)
	}

	team := &models.Team{
		ID:       uuid.NewString(),
		PublicID: newPublicID(s.PublicIDLength),
		Name:     name,
		LeaderID: leader.ID,
	}
	if err := createWithPublicID(s.DB, &models.Team{}, team, &team.PublicID, s.PublicIDLength); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, invalid("team name %q is already taken", name)
		}
		return nil, fmt.Errorf("create team: %w", err)
	}
	log.Printf("[TEAMS] %s created team %q (%s)", leader.Username, team.Name, team.PublicID)
	return loadTeam(s.DB, team.PublicID)
}

// List returns every team for staff and the teams led by viewer otherwise.
func (s *TeamService) List(viewer *models.Profile) ([]models.Team, error) {
	var teams []models.Team
	q := preloadTeam(s.DB).Order("created_at ASC")
	if !viewer.IsStaff {
		q = q.Where("leader_id = ?", viewer.ID)
	}
	if err := q.Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return teams, nil
}

// Get is limited to participants of the team and staff.
func (s *TeamService) Get(viewer *models.Profile, publicID string) (*models.Team, error) {
	team, err := loadTeam(s.DB, publicID)
	if err != nil {
		return nil, err
	}
	if !team.HasParticipant(viewer.ID) && !viewer.IsStaff {
		return nil, forbidden("only team members can view this team")
	}
	return team, nil
}

// EventsOf returns the events the team is registered for.
func (s *TeamService) EventsOf(team *models.Team) ([]models.Event, error) {
	var events []models.Event
	err := s.DB.
		Joins("JOIN team_event_registrations ON team_event_registrations.event_id = events.id").
		Where("team_event_registrations.team_id = ?", team.ID).
		Order("events.starts_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("list team events: %w", err)
	}
	return events, nil
}

func (s *TeamService) Rename(viewer *models.Profile, publicID, name string) (*models.Team, error) {
	name, err := validTeamName(name)
	if err != nil {
		return nil, err
	}
	team, err := loadTeam(s.DB, publicID)
	if err != nil {
		return nil, err
	}
	if !team.IsLeader(viewer.ID) {
		return nil, forbidden("only the team leader can rename the team")
	}
	taken, err := s.nameTaken(s.DB, name, team.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, invalid("team name %q is already taken", name)
	}
	if err := s.DB.Model(&models.Team{}).Where("id = ?", team.ID).Update("name", name).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, invalid("team name %q is already taken", name)
		}
		return nil, fmt.Errorf("rename team: %w", err)
	}
	team.Name = name
	return team, nil
}

// Delete removes the team and its memberships unless a registration references it.
func (s *TeamService) Delete(viewer *models.Profile, publicID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		team, err := lockTeam(tx, publicID)
		if err != nil {
			return err
		}
		if !team.IsLeader(viewer.ID) {
			return forbidden("only the team leader can delete the team")
		}
		registered, err := teamRegistered(tx, team.ID)
		if err != nil {
			return err
		}
		if registered {
			return conflict("team is registered for an event and can not be deleted")
		}
		if err := tx.Where("team_id = ?", team.ID).Delete(&models.TeamMember{}).Error; err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}
		if err := tx.Delete(&models.Team{}, "id = ?", team.ID).Error; err != nil {
			return fmt.Errorf("delete team: %w", err)
		}
		log.Printf("[TEAMS] %s deleted team %q", viewer.Username, team.Name)
		return nil
	})
}

// Invite creates a pending invitation for username. A previously rejected
// invitation is reset to pending.
func (s *TeamService) Invite(ctx context.Context, viewer *models.Profile, publicID, username string) (*models.TeamMember, error) {
	var (
		invitation *models.TeamMember
		team       *models.Team
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		team, err = lockTeam(tx, publicID)
		if err != nil {
			return err
		}
		if !team.IsLeader(viewer.ID) {
			return forbidden("only the team leader can invite members")
		}
		invitee, err := profileByUsername(tx, username)
		if err != nil {
			return err
		}
		if invitee.ID == viewer.ID {
			return conflict("you can not invite yourself")
		}
		registered, err := teamRegistered(tx, team.ID)
		if err != nil {
			return err
		}
		if registered {
			return conflict("team is registered for an event; its members can not change")
		}

		var existing models.TeamMember
		err = tx.Where("team_id = ? AND profile_id = ?", team.ID, invitee.ID).First(&existing).Error
		switch {
		case err == nil && existing.Status() != models.InvitationRejected:
			return invalid("%s is already invited to this team", invitee.Username)
		case err == nil:
			existing.Reset()
			if err := saveInvitation(tx, &existing); err != nil {
				return err
			}
			invitation = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			invitation = &models.TeamMember{
				ID:        uuid.NewString(),
				TeamID:    team.ID,
				ProfileID: invitee.ID,
			}
			if err := tx.Omit("Team", "Profile").Create(invitation).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return invalid("%s is already invited to this team", invitee.Username)
				}
				return fmt.Errorf("create invitation: %w", err)
			}
		default:
			return fmt.Errorf("fetch invitation: %w", err)
		}
		invitation.Profile = *invitee
		invitation.Team = team
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[TEAMS] %s invited %s to %q", viewer.Username, invitation.Profile.Username, team.Name)
	if s.Notifier != nil {
		if err := s.Notifier.TeamInvitation(ctx, team, &invitation.Profile); err != nil {
			log.Printf("[TEAMS] ⚠️ invitation notice to %s failed: %v", invitation.Profile.Username, err)
		}
	}
	return invitation, nil
}

// membership finds the invitation of username in the team, whatever its status.
func membership(tx *gorm.DB, team *models.Team, username string) (*models.TeamMember, error) {
	for i := range team.Memberships {
		if team.Memberships[i].Profile.Username == username {
			return &team.Memberships[i], nil
		}
	}
	if _, err := profileByUsername(tx, username); err != nil {
		return nil, err
	}
	return nil, notFound("%s has no invitation for this team", username)
}

// WithdrawInvitation deletes an invitation that has not been accepted yet.
func (s *TeamService) WithdrawInvitation(viewer *models.Profile, publicID, username string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		team, err := lockTeam(tx, publicID)
		if err != nil {
			return err
		}
		if !team.IsLeader(viewer.ID) {
			return forbidden("only the team leader can withdraw invitations")
		}
		m, err := membership(tx, team, username)
		if err != nil {
			return err
		}
		if m.InvitationAccepted {
			return conflict("invitation already accepted; remove the member instead")
		}
		if err := tx.Delete(&models.TeamMember{}, "id = ?", m.ID).Error; err != nil {
			return fmt.Errorf("delete invitation: %w", err)
		}
		return nil
	})
}

// RemoveMember drops an accepted member unless the team holds a registration.
func (s *TeamService) RemoveMember(viewer *models.Profile, publicID, username string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		team, err := lockTeam(tx, publicID)
		if err != nil {
			return err
		}
		if !team.IsLeader(viewer.ID) {
			return forbidden("only the team leader can remove members")
		}
		m, err := membership(tx, team, username)
		if err != nil {
			return err
		}
		if !m.InvitationAccepted {
			return notFound("%s is not a member of this team", username)
		}
		registered, err := teamRegistered(tx, team.ID)
		if err != nil {
			return err
		}
		if registered {
			return conflict("team is registered for an event; its members can not change")
		}
		if err := tx.Delete(&models.TeamMember{}, "id = ?", m.ID).Error; err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		log.Printf("[TEAMS] %s removed %s from %q", viewer.Username, username, team.Name)
		return nil
	})
}

func requireSelf(viewer *models.Profile, username string) error {
	if viewer.Username != username {
		return forbidden("you can only manage your own invitations")
	}
	return nil
}

// Invitations lists every invitation addressed to username.
func (s *TeamService) Invitations(viewer *models.Profile, username string) ([]models.TeamMember, error) {
	if err := requireSelf(viewer, username); err != nil {
		return nil, err
	}
	var invitations []models.TeamMember
	err := s.DB.
		Preload("Team.Leader").
		Where("profile_id = ?", viewer.ID).
		Order("joined_on DESC").
		Find(&invitations).Error
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	return invitations, nil
}

func invitationFor(tx *gorm.DB, profileID, teamPublicID string) (*models.TeamMember, error) {
	var m models.TeamMember
	err := tx.
		Joins("JOIN teams ON teams.id = team_members.team_id").
		Preload("Team.Leader").
		Where("team_members.profile_id = ? AND teams.public_id = ?", profileID, teamPublicID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("invitation does not exist")
		}
		return nil, fmt.Errorf("fetch invitation: %w", err)
	}
	return &m, nil
}

// saveInvitation persists the two flags and bumps joined_on.
func saveInvitation(tx *gorm.DB, m *models.TeamMember) error {
	err := tx.Model(&models.TeamMember{}).Where("id = ?", m.ID).Updates(map[string]any{
		"invitation_accepted": m.InvitationAccepted,
		"invitation_rejected": m.InvitationRejected,
	}).Error
	if err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	return nil
}

func (s *TeamService) Invitation(viewer *models.Profile, username, teamPublicID string) (*models.TeamMember, error) {
	if err := requireSelf(viewer, username); err != nil {
		return nil, err
	}
	return invitationFor(s.DB, viewer.ID, teamPublicID)
}

// AcceptInvitation fails when the invitation was already accepted or rejected.
func (s *TeamService) AcceptInvitation(viewer *models.Profile, username, teamPublicID string) (*models.TeamMember, error) {
	if err := requireSelf(viewer, username); err != nil {
		return nil, err
	}
	var m *models.TeamMember
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := lockTeamRow(tx, teamPublicID); err != nil {
			return err
		}
		var err error
		m, err = invitationFor(tx, viewer.ID, teamPublicID)
		if err != nil {
			return err
		}
		if err := m.Accept(); err != nil {
			return conflict("%s", err.Error())
		}
		return saveInvitation(tx, m)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[TEAMS] %s joined %q", viewer.Username, m.Team.Name)
	return m, nil
}

// RejectInvitation fails when already rejected, or when leaving a registered team.
func (s *TeamService) RejectInvitation(viewer *models.Profile, username, teamPublicID string) (*models.TeamMember, error) {
	if err := requireSelf(viewer, username); err != nil {
		return nil, err
	}
	var m *models.TeamMember
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := lockTeamRow(tx, teamPublicID); err != nil {
			return err
		}
		var err error
		m, err = invitationFor(tx, viewer.ID, teamPublicID)
		if err != nil {
			return err
		}
		if m.InvitationAccepted {
			registered, err := teamRegistered(tx, m.TeamID)
			if err != nil {
				return err
			}
			if registered {
				return conflict("team is registered for an event; its members can not change")
			}
		}
		if err := m.Reject(); err != nil {
			return conflict("%s", err.Error())
		}
		return saveInvitation(tx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// PurgeRejectedInvitations deletes rejected invitations last touched before cutoff.
func (s *TeamService) PurgeRejectedInvitations(cutoff time.Time) (int64, error) {
	res := s.DB.
		Where("invitation_rejected = ? AND joined_on < ?", true, cutoff).
		Delete(&models.TeamMember{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge rejected invitations: %w", res.Error)
	}
	return res.RowsAffected, nil
}
