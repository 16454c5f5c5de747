package services

import (
	"errors"
	"fmt"
	"strings"

	"techfest-registration/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type ProfileService struct {
	DB *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{DB: db}
}

// ByExternalID resolves the JWT user_id claim to a local profile.
func (s *ProfileService) ByExternalID(externalID string) (*models.Profile, error) {
	var p models.Profile
	if err := s.DB.Preload("Institute").First(&p, "external_user_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user profile does not exist")
		}
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &p, nil
}

func (s *ProfileService) ByID(id string) (*models.Profile, error) {
	var p models.Profile
	if err := s.DB.Preload("Institute").First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user profile does not exist")
		}
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &p, nil
}

func (s *ProfileService) ByUsername(username string) (*models.Profile, error) {
	return profileByUsername(s.DB, username)
}

func profileByUsername(tx *gorm.DB, username string) (*models.Profile, error) {
	var p models.Profile
	if err := tx.Preload("Institute").First(&p, "username = ?", strings.TrimSpace(username)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user %q does not exist", username)
		}
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return &p, nil
}

// AuthenticateStaff checks a username/password pair for the CSV export login.
func (s *ProfileService) AuthenticateStaff(username, password string) (*models.Profile, error) {
	p, err := s.ByUsername(username)
	if errors.Is(err, ErrNotFound) {
		return nil, unauthenticated("invalid username or password")
	}
	if err != nil {
		return nil, err
	}
	if p.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return nil, unauthenticated("invalid username or password")
	}
	if !p.IsStaff {
		return nil, forbidden("only staff can export registrations")
	}
	return p, nil
}

// SetPassword stores a bcrypt hash for the profile.
func (s *ProfileService) SetPassword(profileID, password string) error {
	if len(password) < 8 {
		return invalid("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	res := s.DB.Model(&models.Profile{}).Where("id = ?", profileID).Update("password_hash", string(hash))
	if res.Error != nil {
		return fmt.Errorf("store password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("user profile does not exist")
	}
	return nil
}
