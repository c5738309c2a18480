package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ROLE_PRACTITIONER = "practitioner"
	ROLE_CLIENT       = "client"
	ROLE_ADMIN        = "admin"
)

// User is an account of the practice application. Registration and
// credentials live in the surrounding application; this service only reads
// identity and role.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email     string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Role      string         `gorm:"type:varchar(50);default:'practitioner'" json:"role" validate:"oneof=practitioner client admin"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// IsPractitioner reports whether the account is gated by approval and billing.
func (u *User) IsPractitioner() bool {
	return u.Role == ROLE_PRACTITIONER
}

// DisplayName falls back to a generic salutation when no name is stored.
func (u *User) DisplayName() string {
	if u.Name == "" {
		return "Nutricionista"
	}
	return u.Name
}
