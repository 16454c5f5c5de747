package models

import "time"

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// All lists every model in migration order. Shared by main and the test database.
func All() []any {
	return []any{
		&Institute{},
		&Profile{},
		&Tag{},
		&Category{},
		&Event{},
		&EventImage{},
		&EventRole{},
		&Team{},
		&TeamMember{},
		&SoloEventRegistration{},
		&TeamEventRegistration{},
	}
}
