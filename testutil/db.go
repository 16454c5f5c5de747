// Package testutil provides an in-memory database and fixtures for tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"techfest-registration/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database migrated like production.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection keeps the in-memory database alive and serialises transactions.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Institute creates an institute with the given name.
func Institute(t testing.TB, db *gorm.DB, name string) *models.Institute {
	t.Helper()
	inst := &models.Institute{ID: uuid.NewString(), Name: name}
	if err := db.Create(inst).Error; err != nil {
		t.Fatalf("create institute: %v", err)
	}
	return inst
}

// Profile creates a profile; inst may be nil.
func Profile(t testing.TB, db *gorm.DB, username string, inst *models.Institute) *models.Profile {
	t.Helper()
	p := &models.Profile{
		ID:             uuid.NewString(),
		ExternalUserID: "ext-" + username,
		Username:       username,
		FirstName:      username,
		LastName:       "tester",
		Email:          username + "@example.com",
	}
	if inst != nil {
		p.InstituteID = &inst.ID
		p.Institute = inst
	}
	if err := db.Omit("Institute").Create(p).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

// Staff creates a staff profile.
func Staff(t testing.TB, db *gorm.DB, username string) *models.Profile {
	t.Helper()
	p := Profile(t, db, username, nil)
	if err := db.Model(p).Update("is_staff", true).Error; err != nil {
		t.Fatalf("mark staff: %v", err)
	}
	p.IsStaff = true
	return p
}

// Event creates an event. Team events get the given team size bounds.
func Event(t testing.TB, db *gorm.DB, title, eventType string, minSize, maxSize int) *models.Event {
	t.Helper()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := &models.Event{
		ID:          uuid.NewString(),
		PublicID:    "ev-" + uuid.NewString()[:8],
		Type:        eventType,
		Title:       title,
		StartsAt:    start,
		EndsAt:      start.Add(4 * time.Hour),
		Fee:         200,
		ReservedFee: 100,
	}
	if eventType == models.EventTypeTeam {
		e.MinTeamSize = minSize
		e.MaxTeamSize = maxSize
	}
	if err := db.Omit("Tags", "Categories", "Images").Create(e).Error; err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}
