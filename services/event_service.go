package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"techfest-registration/models"
	"techfest-registration/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImageStore persists event images and returns their public URL.
type ImageStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

type EventService struct {
	DB     *gorm.DB
	Images ImageStore
}

func NewEventService(db *gorm.DB, images ImageStore) *EventService {
	return &EventService{DB: db, Images: images}
}

// EventInput is the writable part of an event.
type EventInput struct {
	Title           string    `json:"title" validate:"required,max=120"`
	Description     string    `json:"description"`
	Venue           string    `json:"venue"`
	StartsAt        time.Time `json:"starts_at" validate:"required"`
	EndsAt          time.Time `json:"ends_at" validate:"required"`
	Fee             float64   `json:"fee" validate:"gte=0"`
	ReservedFee     float64   `json:"reserved_fee" validate:"gte=0"`
	MaxParticipants int       `json:"max_participants" validate:"gte=0"`
	ReservedSlots   int       `json:"reserved_slots" validate:"gte=0"`
	MinTeamSize     int       `json:"min_team_size"`
	MaxTeamSize     int       `json:"max_team_size"`
	Tags            []string  `json:"tags"`
	Categories      []string  `json:"categories"`
}

type EventFilter struct {
	Type     string
	Tag      string
	Category string
}

func preloadEvent(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Tags").Preload("Categories").Preload("Images")
}

func (s *EventService) List(f EventFilter) ([]models.Event, error) {
	var events []models.Event
	q := preloadEvent(s.DB).Model(&models.Event{})
	if f.Type != "" {
		q = q.Where("events.type = ?", f.Type)
	}
	if f.Tag != "" {
		q = q.Where("events.id IN (?)", s.DB.Table("event_tags").
			Select("event_tags.event_id").
			Joins("JOIN tags ON tags.id = event_tags.tag_id").
			Where("tags.name = ?", f.Tag))
	}
	if f.Category != "" {
		q = q.Where("events.id IN (?)", s.DB.Table("event_categories").
			Select("event_categories.event_id").
			Joins("JOIN categories ON categories.id = event_categories.category_id").
			Where("categories.name = ?", f.Category))
	}
	if err := q.Order("events.starts_at ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (s *EventService) Get(publicID string) (*models.Event, error) {
	var e models.Event
	if err := preloadEvent(s.DB).First(&e, "public_id = ?", publicID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("event does not exist")
		}
		return nil, fmt.Errorf("fetch event: %w", err)
	}
	return &e, nil
}

func (s *EventService) titleTaken(tx *gorm.DB, title, exceptID string) (bool, error) {
	var count int64
	q := tx.Model(&models.Event{}).Where("title = ?", title)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check event title: %w", err)
	}
	return count > 0, nil
}

func resolveTags(tx *gorm.DB, names []string) ([]models.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var tags []models.Tag
	if err := tx.Where("name IN ?", names).Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("fetch tags: %w", err)
	}
	if missing := missingNames(names, tags, func(t models.Tag) string { return t.Name }); missing != "" {
		return nil, invalid("tag %q does not exist", missing)
	}
	return tags, nil
}

func resolveCategories(tx *gorm.DB, names []string) ([]models.Category, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var cats []models.Category
	if err := tx.Where("name IN ?", names).Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("fetch categories: %w", err)
	}
	if missing := missingNames(names, cats, func(c models.Category) string { return c.Name }); missing != "" {
		return nil, invalid("category %q does not exist", missing)
	}
	return cats, nil
}

func missingNames[T any](want []string, got []T, name func(T) string) string {
	have := make(map[string]bool, len(got))
	for _, g := range got {
		have[name(g)] = true
	}
	for _, w := range want {
		if !have[w] {
			return w
		}
	}
	return ""
}

func (in *EventInput) apply(e *models.Event) {
	e.Title = strings.TrimSpace(in.Title)
	e.Description = in.Description
	e.Venue = in.Venue
	e.StartsAt = in.StartsAt
	e.EndsAt = in.EndsAt
	e.Fee = in.Fee
	e.ReservedFee = in.ReservedFee
	e.MaxParticipants = in.MaxParticipants
	e.ReservedSlots = in.ReservedSlots
	e.MinTeamSize = in.MinTeamSize
	e.MaxTeamSize = in.MaxTeamSize
}

// Create adds a solo or team event. Staff only.
func (s *EventService) Create(viewer *models.Profile, eventType string, in EventInput) (*models.Event, error) {
	if !viewer.IsStaff {
		return nil, forbidden("only staff can manage events")
	}
	e := &models.Event{ID: uuid.NewString(), Type: eventType}
	in.apply(e)
	if err := e.Validate(); err != nil {
		return nil, invalid("%s", err.Error())
	}
	e.PublicID = EventPublicID(e.Title)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		taken, err := s.titleTaken(tx, e.Title, "")
		if err != nil {
			return err
		}
		if taken {
			return invalid("an event titled %q already exists", e.Title)
		}
		if e.Tags, err = resolveTags(tx, in.Tags); err != nil {
			return err
		}
		if e.Categories, err = resolveCategories(tx, in.Categories); err != nil {
			return err
		}
		if err := tx.Omit("Tags.*", "Categories.*", "Images").Create(e).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return invalid("an event titled %q already exists", e.Title)
			}
			return fmt.Errorf("create event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[EVENTS] %s created %s event %q (%s)", viewer.Username, e.Type, e.Title, e.PublicID)
	return e, nil
}

// Update replaces the writable fields, tags and categories. The type never changes.
func (s *EventService) Update(viewer *models.Profile, publicID string, in EventInput) (*models.Event, error) {
	if !viewer.IsStaff {
		return nil, forbidden("only staff can manage events")
	}
	var e *models.Event
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		if e, err = eventByPublicID(tx, publicID); err != nil {
			return err
		}
		in.apply(e)
		if err := e.Validate(); err != nil {
			return invalid("%s", err.Error())
		}
		taken, err := s.titleTaken(tx, e.Title, e.ID)
		if err != nil {
			return err
		}
		if taken {
			return invalid("an event titled %q already exists", e.Title)
		}
		tags, err := resolveTags(tx, in.Tags)
		if err != nil {
			return err
		}
		cats, err := resolveCategories(tx, in.Categories)
		if err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(e).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return invalid("an event titled %q already exists", e.Title)
			}
			return fmt.Errorf("update event: %w", err)
		}
		if err := tx.Model(e).Association("Tags").Replace(tags); err != nil {
			return fmt.Errorf("update event tags: %w", err)
		}
		if err := tx.Model(e).Association("Categories").Replace(cats); err != nil {
			return fmt.Errorf("update event categories: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(e.PublicID)
}

// Delete removes an event that nobody registered for.
func (s *EventService) Delete(ctx context.Context, viewer *models.Profile, publicID string) error {
	if !viewer.IsStaff {
		return forbidden("only staff can manage events")
	}
	var (
		title string
		keys  []string
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		e, err := eventByPublicID(tx, publicID)
		if err != nil {
			return err
		}
		var solo, team int64
		if err := tx.Model(&models.SoloEventRegistration{}).Where("event_id = ?", e.ID).Count(&solo).Error; err != nil {
			return fmt.Errorf("count registrations: %w", err)
		}
		if err := tx.Model(&models.TeamEventRegistration{}).Where("event_id = ?", e.ID).Count(&team).Error; err != nil {
			return fmt.Errorf("count registrations: %w", err)
		}
		if solo+team > 0 {
			return conflict("event has registrations and can not be deleted")
		}
		if err := tx.Where("event_id = ?", e.ID).Delete(&models.EventRole{}).Error; err != nil {
			return fmt.Errorf("delete event roles: %w", err)
		}
		if err := tx.Model(&models.EventImage{}).Where("event_id = ?", e.ID).Pluck("object_key", &keys).Error; err != nil {
			return fmt.Errorf("list event images: %w", err)
		}
		if err := tx.Where("event_id = ?", e.ID).Delete(&models.EventImage{}).Error; err != nil {
			return fmt.Errorf("delete event images: %w", err)
		}
		if err := tx.Model(e).Association("Tags").Clear(); err != nil {
			return fmt.Errorf("clear event tags: %w", err)
		}
		if err := tx.Model(e).Association("Categories").Clear(); err != nil {
			return fmt.Errorf("clear event categories: %w", err)
		}
		if err := tx.Delete(&models.Event{}, "id = ?", e.ID).Error; err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		title = e.Title
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("[EVENTS] %s deleted %q", viewer.Username, title)

	// Stored objects go only after the rows are gone; a failed delete leaves an orphan.
	if s.Images != nil {
		for _, key := range keys {
			if err := s.Images.Delete(ctx, key); err != nil {
				log.Printf("[EVENTS] ⚠️ failed to delete image %s: %v", key, err)
			}
		}
	}
	return nil
}

func (s *EventService) Tags() ([]models.Tag, error) {
	var tags []models.Tag
	if err := s.DB.Order("name ASC").Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

func (s *EventService) CreateTag(viewer *models.Profile, name, description string) (*models.Tag, error) {
	if !viewer.IsStaff {
		return nil, forbidden("only staff can create tags")
	}
	tag := &models.Tag{ID: uuid.NewString(), Name: strings.TrimSpace(name), Description: description}
	if tag.Name == "" {
		return nil, invalid(`required field "name" not provided`)
	}
	if err := s.DB.Create(tag).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflict("tag %q already exists", tag.Name)
		}
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return tag, nil
}

func (s *EventService) Categories() ([]models.Category, error) {
	var cats []models.Category
	if err := s.DB.Order("name ASC").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (s *EventService) CreateCategory(viewer *models.Profile, name, description string) (*models.Category, error) {
	if !viewer.IsStaff {
		return nil, forbidden("only staff can create categories")
	}
	cat := &models.Category{ID: uuid.NewString(), Name: strings.TrimSpace(name), Description: description}
	if cat.Name == "" {
		return nil, invalid(`required field "name" not provided`)
	}
	if err := s.DB.Create(cat).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, conflict("category %q already exists", cat.Name)
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return cat, nil
}

// AssignRole makes username an organizer or volunteer of the event.
// Profiles already registered for the event can not take a role.
func (s *EventService) AssignRole(viewer *models.Profile, publicID, username, role string) (*models.EventRole, error) {
	if !viewer.IsStaff {
		return nil, forbidden("only staff can assign event roles")
	}
	if role != models.RoleOrganizer && role != models.RoleVolunteer {
		return nil, invalid("role must be %s or %s", models.RoleOrganizer, models.RoleVolunteer)
	}
	var er *models.EventRole
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		e, err := eventByPublicID(tx, publicID)
		if err != nil {
			return err
		}
		p, err := profileByUsername(tx, username)
		if err != nil {
			return err
		}
		registered, err := takesPart(tx, e, p.ID)
		if err != nil {
			return err
		}
		if registered {
			return conflict("%s is registered for %q", p.Username, e.Title)
		}
		er = &models.EventRole{ID: uuid.NewString(), EventID: e.ID, ProfileID: p.ID, Role: role}
		err = tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "profile_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role"}),
		}).Create(er).Error
		if err != nil {
			return fmt.Errorf("assign event role: %w", err)
		}
		er.Profile = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return er, nil
}

// takesPart reports whether the profile is registered for the event, alone or in a team.
func takesPart(tx *gorm.DB, e *models.Event, profileID string) (bool, error) {
	var count int64
	if !e.IsTeam() {
		err := tx.Model(&models.SoloEventRegistration{}).
			Where("event_id = ? AND profile_id = ?", e.ID, profileID).
			Count(&count).Error
		if err != nil {
			return false, fmt.Errorf("check registration: %w", err)
		}
		return count > 0, nil
	}
	err := tx.Model(&models.TeamEventRegistration{}).
		Joins("JOIN teams ON teams.id = team_event_registrations.team_id").
		Where("team_event_registrations.event_id = ?", e.ID).
		Where("teams.leader_id = ? OR teams.id IN (?)", profileID,
			tx.Model(&models.TeamMember{}).Select("team_id").
				Where("profile_id = ? AND invitation_accepted = ?", profileID, true)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check registration: %w", err)
	}
	return count > 0, nil
}

func (s *EventService) RemoveRole(viewer *models.Profile, publicID, username string) error {
	if !viewer.IsStaff {
		return forbidden("only staff can remove event roles")
	}
	e, err := eventByPublicID(s.DB, publicID)
	if err != nil {
		return err
	}
	p, err := profileByUsername(s.DB, username)
	if err != nil {
		return err
	}
	res := s.DB.Where("event_id = ? AND profile_id = ?", e.ID, p.ID).Delete(&models.EventRole{})
	if res.Error != nil {
		return fmt.Errorf("remove event role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("%s has no role in %q", p.Username, e.Title)
	}
	return nil
}

func (s *EventService) Roles(publicID string) ([]models.EventRole, error) {
	e, err := eventByPublicID(s.DB, publicID)
	if err != nil {
		return nil, err
	}
	var roles []models.EventRole
	if err := s.DB.Preload("Profile").Where("event_id = ?", e.ID).Order("created_at ASC").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("list event roles: %w", err)
	}
	return roles, nil
}

// UploadImage stores a picture or logo for the event and records it.
func (s *EventService) UploadImage(ctx context.Context, viewer *models.Profile, publicID, purpose, filename, contentType string, body io.Reader, size int64) (*models.EventImage, error) {
	if !viewer.IsStaff {
		return nil, forbidden("only staff can upload event images")
	}
	if s.Images == nil {
		return nil, &Error{Kind: ErrUnavailable, Msg: "image storage is not configured"}
	}
	if purpose != models.ImagePurposePicture && purpose != models.ImagePurposeLogo {
		return nil, invalid("purpose must be %s or %s", models.ImagePurposePicture, models.ImagePurposeLogo)
	}
	e, err := eventByPublicID(s.DB, publicID)
	if err != nil {
		return nil, err
	}

	img := &models.EventImage{ID: uuid.NewString(), EventID: e.ID, Purpose: purpose}
	img.ObjectKey = utils.EventImageKey(e.PublicID, purpose, img.ID, filename)
	if img.URL, err = s.Images.Upload(ctx, img.ObjectKey, contentType, body, size); err != nil {
		return nil, fmt.Errorf("upload event image: %w", err)
	}
	if err := s.DB.Create(img).Error; err != nil {
		if derr := s.Images.Delete(ctx, img.ObjectKey); derr != nil {
			log.Printf("[EVENTS] ⚠️ failed to delete unrecorded image %s: %v", img.ObjectKey, derr)
		}
		return nil, fmt.Errorf("record event image: %w", err)
	}
	log.Printf("[EVENTS] uploaded %s for %q: %s", purpose, e.Title, img.URL)
	return img, nil
}
