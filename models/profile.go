package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type Institute struct {
	ID   string `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
}

// Profile is a local snapshot of an identity-provider user.
// Populated by the profile sync worker; ExternalUserID is the JWT user_id claim.
type Profile struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	ExternalUserID string     `json:"-" gorm:"uniqueIndex;not null"`
	Username       string     `json:"username" gorm:"uniqueIndex;not null"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Email          string     `json:"email"`
	IsStaff        bool       `json:"is_staff" gorm:"default:false"`
	PasswordHash   string     `json:"-"` // bcrypt, only set for staff using the CSV login
	InstituteID    *string    `json:"-" gorm:"index"`
	Institute      *Institute `json:"institute,omitempty" gorm:"foreignKey:InstituteID"`
	LastSyncedAt   *time.Time `json:"-"`

	Timestamps
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (p *Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// InstituteName returns "" when the institute is unknown or not loaded.
func (p *Profile) InstituteName() string {
	if p.Institute == nil {
		return ""
	}
	return p.Institute.Name
}

// BelongsTo reports whether the profile studies at the named institute.
func (p *Profile) BelongsTo(institute string) bool {
	return institute != "" && p.InstituteName() == institute
}
