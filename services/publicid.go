package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const publicIDAttempts = 3

// newPublicID is replaced in tests to force collisions.
var newPublicID = NewPublicID

// NewPublicID returns an opaque lowercase hex id of length n (max 32).
func NewPublicID(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n <= 0 || n > len(id) {
		return id
	}
	return id[:n]
}

// EventPublicID builds a readable id such as "robo-wars-3f9a1c".
func EventPublicID(title string) string {
	s := slug.Make(title)
	if len(s) > 60 {
		s = strings.Trim(s[:60], "-")
	}
	if s == "" {
		s = "event"
	}
	return s + "-" + NewPublicID(6)
}

// createWithPublicID inserts row under a savepoint. A unique violation on a
// public id that is already taken draws a fresh id and retries; any other
// violation is returned unchanged. model is an empty value of row's type.
func createWithPublicID(tx *gorm.DB, model, row any, publicID *string, length int) error {
	for attempt := 1; ; attempt++ {
		err := tx.Transaction(func(tx *gorm.DB) error {
			return tx.Omit(clause.Associations).Create(row).Error
		})
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) || attempt == publicIDAttempts {
			return err
		}
		var taken int64
		if cerr := tx.Model(model).Where("public_id = ?", *publicID).Count(&taken).Error; cerr != nil {
			return fmt.Errorf("check public id: %w", cerr)
		}
		if taken == 0 {
			return err
		}
		*publicID = newPublicID(length)
	}
}
