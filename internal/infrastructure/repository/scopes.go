package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OwnedBy returns a GORM scope that restricts a query to one user's records.
// Every receipt query must apply it; a nil user id yields no rows rather
// than all rows, which prevents accidental cross-user data access.
func OwnedBy(userID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if userID == uuid.Nil {
			// Fail-safe: no user, no rows
			return db.Where("1 = 0")
		}
		return db.Where("user_id = ?", userID)
	}
}
