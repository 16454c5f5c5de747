package models

import (
	"errors"
	"time"
)

const (
	StatusPaymentPending = "payment pending"
	StatusWaiting        = "waiting"
	StatusConfirmed      = "confirmed"
)

var ErrConfirmIncomplete = errors.New("registration can not be confirmed until it is complete")

// RegistrationState is shared by solo and team registrations.
// pending -> complete (waiting) -> confirmed; confirmed requires complete.
type RegistrationState struct {
	IsComplete  bool `json:"is_complete" gorm:"default:false"`
	IsConfirmed bool `json:"is_confirmed" gorm:"default:false"`
	IsReserved  bool `json:"is_reserved" gorm:"default:false"`
}

func (s RegistrationState) Status() string {
	if !s.IsComplete {
		return StatusPaymentPending
	}
	if s.IsConfirmed {
		return StatusConfirmed
	}
	return StatusWaiting
}

func (s RegistrationState) Validate() error {
	if s.IsConfirmed && !s.IsComplete {
		return ErrConfirmIncomplete
	}
	return nil
}

// Apply updates the flags that are non-nil. The state is left untouched on error.
func (s *RegistrationState) Apply(complete, confirmed *bool) error {
	next := *s
	if complete != nil {
		next.IsComplete = *complete
	}
	if confirmed != nil {
		next.IsConfirmed = *confirmed
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}

// Fee picks the reserved or base fee of the event.
func (s RegistrationState) Fee(e *Event) float64 {
	if s.IsReserved {
		return e.ReservedFee
	}
	return e.Fee
}

type SoloEventRegistration struct {
	ID        string  `json:"-" gorm:"primaryKey"`
	PublicID  string  `json:"registration_id" gorm:"uniqueIndex;not null"`
	EventID   string  `json:"-" gorm:"uniqueIndex:idx_solo_event_profile;not null"`
	Event     Event   `json:"-" gorm:"foreignKey:EventID;constraint:OnDelete:RESTRICT"`
	ProfileID string  `json:"-" gorm:"uniqueIndex:idx_solo_event_profile;not null;index"`
	Profile   Profile `json:"-" gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`

	RegistrationState

	CreatedOn time.Time `json:"created_on" gorm:"autoCreateTime"`
	UpdatedOn time.Time `json:"updated_on" gorm:"autoUpdateTime"`
}

type TeamEventRegistration struct {
	ID       string `json:"-" gorm:"primaryKey"`
	PublicID string `json:"registration_id" gorm:"uniqueIndex;not null"`
	EventID  string `json:"-" gorm:"uniqueIndex:idx_team_event_team;not null"`
	Event    Event  `json:"-" gorm:"foreignKey:EventID;constraint:OnDelete:RESTRICT"`
	TeamID   string `json:"-" gorm:"uniqueIndex:idx_team_event_team;not null;index"`
	Team     Team   `json:"-" gorm:"foreignKey:TeamID;constraint:OnDelete:RESTRICT"`

	RegistrationState

	CreatedOn time.Time `json:"created_on" gorm:"autoCreateTime"`
	UpdatedOn time.Time `json:"updated_on" gorm:"autoUpdateTime"`
}
