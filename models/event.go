package models

import (
	"errors"
	"time"
)

const (
	EventTypeSolo = "solo"
	EventTypeTeam = "team"
)

const (
	RoleOrganizer = "organizer"
	RoleVolunteer = "volunteer"
)

const (
	ImagePurposePicture = "picture"
	ImagePurposeLogo    = "logo"
)

type Tag struct {
	ID          string `json:"-" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"uniqueIndex;not null"`
	Description string `json:"description"`
}

type Category struct {
	ID          string `json:"-" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"uniqueIndex;not null"`
	Description string `json:"description"`
}

// Event is either a solo or a team event. Team size bounds are zero for solo events.
type Event struct {
	ID              string    `json:"-" gorm:"primaryKey"`
	PublicID        string    `json:"public_id" gorm:"uniqueIndex;not null"`
	Type            string    `json:"type" gorm:"type:varchar(8);not null;index"`
	Title           string    `json:"title" gorm:"uniqueIndex;not null"`
	Description     string    `json:"description" gorm:"type:text"`
	Venue           string    `json:"venue"`
	StartsAt        time.Time `json:"starts_at" gorm:"not null"`
	EndsAt          time.Time `json:"ends_at" gorm:"not null"`
	Fee             float64   `json:"fee" gorm:"default:0"`
	ReservedFee     float64   `json:"reserved_fee" gorm:"default:0"`
	MaxParticipants int       `json:"max_participants" gorm:"default:0"` // 0 = unlimited
	ReservedSlots   int       `json:"reserved_slots" gorm:"default:0"`
	MinTeamSize     int       `json:"min_team_size,omitempty" gorm:"default:0"`
	MaxTeamSize     int       `json:"max_team_size,omitempty" gorm:"default:0"`

	Tags       []Tag        `json:"tags" gorm:"many2many:event_tags;"`
	Categories []Category   `json:"categories" gorm:"many2many:event_categories;"`
	Images     []EventImage `json:"images,omitempty" gorm:"foreignKey:EventID;constraint:OnDelete:CASCADE"`

	Timestamps
}

func (e *Event) IsTeam() bool { return e.Type == EventTypeTeam }

// AllowsTeamSize reports whether a team of n participants may register.
func (e *Event) AllowsTeamSize(n int) bool {
	return n >= e.MinTeamSize && n <= e.MaxTeamSize
}

// Validate checks the schedule, capacity and team size invariants.
func (e *Event) Validate() error {
	if e.Title == "" {
		return errors.New("title is required")
	}
	if e.Type != EventTypeSolo && e.Type != EventTypeTeam {
		return errors.New("type must be solo or team")
	}
	if e.StartsAt.IsZero() || e.EndsAt.IsZero() {
		return errors.New("starts_at and ends_at are required")
	}
	if e.EndsAt.Before(e.StartsAt) {
		return errors.New("event can not end before it starts")
	}
	if e.Fee < 0 || e.ReservedFee < 0 {
		return errors.New("fees must be non-negative")
	}
	if e.MaxParticipants < 0 || e.ReservedSlots < 0 {
		return errors.New("max_participants and reserved_slots must be non-negative")
	}
	if e.MaxParticipants > 0 && e.ReservedSlots > e.MaxParticipants {
		return errors.New("reserved_slots can not exceed max_participants")
	}
	if e.IsTeam() {
		if e.MinTeamSize < 1 {
			return errors.New("min_team_size must be at least 1")
		}
		if e.MaxTeamSize < e.MinTeamSize {
			return errors.New("max_team_size can not be less than min_team_size")
		}
	} else if e.MinTeamSize != 0 || e.MaxTeamSize != 0 {
		return errors.New("solo events do not take team sizes")
	}
	return nil
}

// EventRole marks a profile as organizer or volunteer of an event.
// Such profiles can not register for the same event.
type EventRole struct {
	ID        string    `json:"-" gorm:"primaryKey"`
	EventID   string    `json:"-" gorm:"uniqueIndex:idx_event_role_profile;not null"`
	ProfileID string    `json:"-" gorm:"uniqueIndex:idx_event_role_profile;not null"`
	Profile   Profile   `json:"profile" gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`
	Role      string    `json:"role" gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

type EventImage struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	EventID    string    `json:"-" gorm:"not null;index"`
	Purpose    string    `json:"purpose" gorm:"type:varchar(16);not null"`
	ObjectKey  string    `json:"-" gorm:"not null"`
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploaded_at" gorm:"autoCreateTime"`
}
