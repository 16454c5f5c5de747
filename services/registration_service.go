package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"techfest-registration/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RegistrationService struct {
	DB                *gorm.DB
	PublicIDLength    int
	ReservedInstitute string
}

func NewRegistrationService(db *gorm.DB, publicIDLength int, reservedInstitute string) *RegistrationService {
	return &RegistrationService{DB: db, PublicIDLength: publicIDLength, ReservedInstitute: reservedInstitute}
}

// Registration holds either a solo or a team registration of Event.
type Registration struct {
	Event *models.Event
	Solo  *models.SoloEventRegistration
	Team  *models.TeamEventRegistration
}

func (r *Registration) PublicID() string {
	if r.Solo != nil {
		return r.Solo.PublicID
	}
	return r.Team.PublicID
}

func (r *Registration) State() *models.RegistrationState {
	if r.Solo != nil {
		return &r.Solo.RegistrationState
	}
	return &r.Team.RegistrationState
}

func eventByPublicID(tx *gorm.DB, publicID string) (*models.Event, error) {
	var e models.Event
	if err := tx.First(&e, "public_id = ?", publicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("event does not exist")
		}
		return nil, fmt.Errorf("fetch event: %w", err)
	}
	return &e, nil
}

// hasRole reports whether any of the profiles organizes or volunteers at the event.
func hasRole(tx *gorm.DB, eventID string, profileIDs ...string) (bool, error) {
	var count int64
	err := tx.Model(&models.EventRole{}).
		Where("event_id = ? AND profile_id IN ?", eventID, profileIDs).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check event roles: %w", err)
	}
	return count > 0, nil
}

// checkCapacity enforces max_participants and the reserved slots carved out of it.
func checkCapacity(tx *gorm.DB, e *models.Event, reserved bool) error {
	if e.MaxParticipants <= 0 {
		return nil
	}
	var model any = &models.SoloEventRegistration{}
	if e.IsTeam() {
		model = &models.TeamEventRegistration{}
	}

	var total, open int64
	if err := tx.Model(model).Where("event_id = ?", e.ID).Count(&total).Error; err != nil {
		return fmt.Errorf("count registrations: %w", err)
	}
	if total >= int64(e.MaxParticipants) {
		return conflict("event is full")
	}
	if reserved {
		return nil
	}
	if err := tx.Model(model).Where("event_id = ? AND is_reserved = ?", e.ID, false).Count(&open).Error; err != nil {
		return fmt.Errorf("count registrations: %w", err)
	}
	if open >= int64(e.MaxParticipants-e.ReservedSlots) {
		return conflict("no open slots left; remaining slots are reserved")
	}
	return nil
}

// Register signs the caller up for a solo event, or the caller's team for a team event.
func (s *RegistrationService) Register(viewer *models.Profile, eventPublicID, teamPublicID string) (*Registration, error) {
	var reg *Registration
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var e models.Event
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&e, "public_id = ?", eventPublicID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("event does not exist")
		}
		if err != nil {
			return fmt.Errorf("lock event: %w", err)
		}

		if e.IsTeam() {
			reg, err = s.registerTeam(tx, viewer, &e, strings.TrimSpace(teamPublicID))
		} else {
			if teamPublicID != "" {
				return invalid("%q is a solo event; teamId is not accepted", e.Title)
			}
			reg, err = s.registerSolo(tx, viewer, &e)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[REGISTRATION] %s registered for %q (%s)", viewer.Username, reg.Event.Title, reg.PublicID())
	return reg, nil
}

func (s *RegistrationService) registerSolo(tx *gorm.DB, viewer *models.Profile, e *models.Event) (*Registration, error) {
	var count int64
	if err := tx.Model(&models.SoloEventRegistration{}).
		Where("event_id = ? AND profile_id = ?", e.ID, viewer.ID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check registration: %w", err)
	}
	if count > 0 {
		return nil, conflict("you are already registered for %q", e.Title)
	}
	busy, err := hasRole(tx, e.ID, viewer.ID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, conflict("organizers and volunteers can not register for their event")
	}

	reserved := viewer.BelongsTo(s.ReservedInstitute)
	if err := checkCapacity(tx, e, reserved); err != nil {
		return nil, err
	}

	solo := &models.SoloEventRegistration{
		ID:                uuid.NewString(),
		PublicID:          newPublicID(s.PublicIDLength),
		EventID:           e.ID,
		ProfileID:         viewer.ID,
		RegistrationState: models.RegistrationState{IsReserved: reserved},
	}
	if err := createWithPublicID(tx, &models.SoloEventRegistration{}, solo, &solo.PublicID, s.PublicIDLength); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflict("you are already registered for %q", e.Title)
		}
		return nil, fmt.Errorf("create registration: %w", err)
	}
	solo.Event = *e
	solo.Profile = *viewer
	return &Registration{Event: e, Solo: solo}, nil
}

func (s *RegistrationService) registerTeam(tx *gorm.DB, viewer *models.Profile, e *models.Event, teamPublicID string) (*Registration, error) {
	if teamPublicID == "" {
		return nil, invalid(`required field "teamId" not provided`)
	}
	team, err := lockTeam(tx, teamPublicID)
	if err != nil {
		return nil, err
	}
	if !team.IsLeader(viewer.ID) {
		return nil, conflict("only the team leader can register the team")
	}

	var count int64
	if err := tx.Model(&models.TeamEventRegistration{}).
		Where("event_id = ? AND team_id = ?", e.ID, team.ID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check registration: %w", err)
	}
	if count > 0 {
		return nil, conflict("team %q is already registered for %q", team.Name, e.Title)
	}
	if !team.Ready() {
		return nil, conflict("team %q has pending invitations", team.Name)
	}
	if n := team.MemberCount(); !e.AllowsTeamSize(n) {
		return nil, conflict("team size %d is outside the allowed range %d-%d", n, e.MinTeamSize, e.MaxTeamSize)
	}

	var ids []string
	for _, p := range team.Participants() {
		ids = append(ids, p.ID)
	}
	clash, err := participantElsewhere(tx, e.ID, team.ID, ids)
	if err != nil {
		return nil, err
	}
	if clash != "" {
		return nil, conflict("%s is already registered for %q with another team", clash, e.Title)
	}
	busy, err := hasRole(tx, e.ID, ids...)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, conflict("organizers and volunteers can not register for their event")
	}

	reserved := team.IsReserved(s.ReservedInstitute)
	if err := checkCapacity(tx, e, reserved); err != nil {
		return nil, err
	}

	tr := &models.TeamEventRegistration{
		ID:                uuid.NewString(),
		PublicID:          newPublicID(s.PublicIDLength),
		EventID:           e.ID,
		TeamID:            team.ID,
		RegistrationState: models.RegistrationState{IsReserved: reserved},
	}
	if err := createWithPublicID(tx, &models.TeamEventRegistration{}, tr, &tr.PublicID, s.PublicIDLength); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflict("team %q is already registered for %q", team.Name, e.Title)
		}
		return nil, fmt.Errorf("create registration: %w", err)
	}
	tr.Event = *e
	tr.Team = *team
	return &Registration{Event: e, Team: tr}, nil
}

// withRegisteredTeam preloads a registration's team with its participants.
func withRegisteredTeam(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Team.Leader.Institute").
		Preload("Team.Memberships.Profile.Institute")
}

// participantElsewhere returns the username of a profile that already takes part
// in the event through another registered team, or "".
func participantElsewhere(tx *gorm.DB, eventID, teamID string, profileIDs []string) (string, error) {
	var others []models.Team
	err := preloadTeam(tx).
		Joins("JOIN team_event_registrations ON team_event_registrations.team_id = teams.id").
		Where("team_event_registrations.event_id = ? AND teams.id <> ?", eventID, teamID).
		Find(&others).Error
	if err != nil {
		return "", fmt.Errorf("fetch registered teams: %w", err)
	}
	for i := range others {
		for _, p := range others[i].Participants() {
			for _, id := range profileIDs {
				if p.ID == id {
					return p.Username, nil
				}
			}
		}
	}
	return "", nil
}

// teamRegistrationOf finds the registration of the team the viewer takes part in.
func teamRegistrationOf(tx *gorm.DB, e *models.Event, viewer *models.Profile) (*models.TeamEventRegistration, error) {
	var regs []models.TeamEventRegistration
	err := tx.
		Scopes(withRegisteredTeam).
		Where("event_id = ?", e.ID).
		Find(&regs).Error
	if err != nil {
		return nil, fmt.Errorf("fetch team registrations: %w", err)
	}
	for i := range regs {
		if regs[i].Team.HasParticipant(viewer.ID) {
			regs[i].Event = *e
			return &regs[i], nil
		}
	}
	return nil, nil
}

// Mine returns the caller's registration for the event, or nil when there is none.
func (s *RegistrationService) Mine(viewer *models.Profile, eventPublicID string) (*Registration, error) {
	e, err := eventByPublicID(s.DB, eventPublicID)
	if err != nil {
		return nil, err
	}
	if e.IsTeam() {
		tr, err := teamRegistrationOf(s.DB, e, viewer)
		if err != nil || tr == nil {
			return nil, err
		}
		return &Registration{Event: e, Team: tr}, nil
	}

	var solo models.SoloEventRegistration
	err = s.DB.Preload("Profile.Institute").
		Where("event_id = ? AND profile_id = ?", e.ID, viewer.ID).
		First(&solo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch registration: %w", err)
	}
	solo.Event = *e
	return &Registration{Event: e, Solo: &solo}, nil
}

// Unregister removes the caller's registration. It reports false when there was none.
func (s *RegistrationService) Unregister(viewer *models.Profile, eventPublicID string) (bool, error) {
	deleted := false
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		e, err := eventByPublicID(tx, eventPublicID)
		if err != nil {
			return err
		}
		if !e.IsTeam() {
			res := tx.Where("event_id = ? AND profile_id = ?", e.ID, viewer.ID).Delete(&models.SoloEventRegistration{})
			if res.Error != nil {
				return fmt.Errorf("delete registration: %w", res.Error)
			}
			deleted = res.RowsAffected > 0
			return nil
		}

		tr, err := teamRegistrationOf(tx, e, viewer)
		if err != nil || tr == nil {
			return err
		}
		if !tr.Team.IsLeader(viewer.ID) {
			return conflict("only the team leader can unregister the team")
		}
		if err := tx.Delete(&models.TeamEventRegistration{}, "id = ?", tr.ID).Error; err != nil {
			return fmt.Errorf("delete registration: %w", err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if deleted {
		log.Printf("[REGISTRATION] %s unregistered from %s", viewer.Username, eventPublicID)
	}
	return deleted, nil
}

// ListForEvent returns every registration of the event. Staff only.
func (s *RegistrationService) ListForEvent(viewer *models.Profile, eventPublicID string) ([]Registration, error) {
	if !viewer.IsStaff {
		return nil, forbidden("only staff can list event registrations")
	}
	e, err := eventByPublicID(s.DB, eventPublicID)
	if err != nil {
		return nil, err
	}
	return s.forEvent(e)
}

func (s *RegistrationService) forEvent(e *models.Event) ([]Registration, error) {
	var out []Registration
	if e.IsTeam() {
		var regs []models.TeamEventRegistration
		err := s.DB.Scopes(withRegisteredTeam).
			Where("event_id = ?", e.ID).
			Order("created_on ASC").
			Find(&regs).Error
		if err != nil {
			return nil, fmt.Errorf("list registrations: %w", err)
		}
		for i := range regs {
			regs[i].Event = *e
			out = append(out, Registration{Event: e, Team: &regs[i]})
		}
		return out, nil
	}

	var regs []models.SoloEventRegistration
	err := s.DB.Preload("Profile.Institute").
		Where("event_id = ?", e.ID).
		Order("created_on ASC").
		Find(&regs).Error
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	for i := range regs {
		regs[i].Event = *e
		out = append(out, Registration{Event: e, Solo: &regs[i]})
	}
	return out, nil
}

// Update toggles completeness and confirmation. Staff only.
func (s *RegistrationService) Update(viewer *models.Profile, publicID string, complete, confirmed *bool) (*Registration, error) {
	if !viewer.IsStaff {
		return nil, forbidden("only staff can update registrations")
	}
	var reg *Registration
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = registrationByPublicID(tx, publicID)
		if err != nil {
			return err
		}
		state := reg.State()
		if err := state.Apply(complete, confirmed); err != nil {
			return conflict("%s", err.Error())
		}

		var model any = &models.SoloEventRegistration{}
		id := ""
		if reg.Solo != nil {
			id = reg.Solo.ID
		} else {
			model = &models.TeamEventRegistration{}
			id = reg.Team.ID
		}
		err = tx.Model(model).Where("id = ?", id).Updates(map[string]any{
			"is_complete":  state.IsComplete,
			"is_confirmed": state.IsConfirmed,
		}).Error
		if err != nil {
			return fmt.Errorf("update registration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[REGISTRATION] %s set %s to %q", viewer.Username, publicID, reg.State().Status())
	return reg, nil
}

func registrationByPublicID(tx *gorm.DB, publicID string) (*Registration, error) {
	var solo models.SoloEventRegistration
	err := tx.Preload("Event").Preload("Profile.Institute").First(&solo, "public_id = ?", publicID).Error
	if err == nil {
		return &Registration{Event: &solo.Event, Solo: &solo}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("fetch registration: %w", err)
	}

	var tr models.TeamEventRegistration
	err = tx.Preload("Event").Scopes(withRegisteredTeam).First(&tr, "public_id = ?", publicID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("registration does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("fetch registration: %w", err)
	}
	return &Registration{Event: &tr.Event, Team: &tr}, nil
}

// ForProfile lists the solo and team registrations a user takes part in.
func (s *RegistrationService) ForProfile(viewer *models.Profile, username string) ([]Registration, error) {
	if viewer.Username != username && !viewer.IsStaff {
		return nil, forbidden("you can only list your own registrations")
	}
	p, err := profileByUsername(s.DB, username)
	if err != nil {
		return nil, err
	}

	var solos []models.SoloEventRegistration
	err = s.DB.Preload("Event").Preload("Profile.Institute").
		Where("profile_id = ?", p.ID).
		Order("created_on ASC").
		Find(&solos).Error
	if err != nil {
		return nil, fmt.Errorf("list solo registrations: %w", err)
	}

	var teams []models.TeamEventRegistration
	err = s.DB.Preload("Event").Scopes(withRegisteredTeam).
		Joins("JOIN teams ON teams.id = team_event_registrations.team_id").
		Where("teams.leader_id = ? OR teams.id IN (?)", p.ID,
			s.DB.Model(&models.TeamMember{}).Select("team_id").
				Where("profile_id = ? AND invitation_accepted = ?", p.ID, true)).
		Order("team_event_registrations.created_on ASC").
		Find(&teams).Error
	if err != nil {
		return nil, fmt.Errorf("list team registrations: %w", err)
	}

	out := make([]Registration, 0, len(solos)+len(teams))
	for i := range solos {
		out = append(out, Registration{Event: &solos[i].Event, Solo: &solos[i]})
	}
	for i := range teams {
		out = append(out, Registration{Event: &teams[i].Event, Team: &teams[i]})
	}
	return out, nil
}
