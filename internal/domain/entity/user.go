package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account in the receipt archive. A user only ever sees their own
// receipts; UserID on Receipt is the sole tenancy boundary.
type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Surname    string    `gorm:"size:255;not null" json:"surname"`
	Email      string    `gorm:"size:255;unique;not null" json:"email"`
	Password   string    `gorm:"size:255" json:"-"`
	Provider   string    `gorm:"size:50;default:'local'" json:"provider"`
	ProviderID *string   `gorm:"size:255" json:"-"`
	Photo      *string   `gorm:"size:255" json:"photo,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Receipts []Receipt `gorm:"foreignKey:UserID" json:"-"`
}

// BeforeCreate generates a UUID before creating a new user
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}
