package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/actorcontext"
)

// User is a person known to the restaurant: staff or a client.
type User struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	Username    string            `gorm:"type:text;not null;uniqueIndex" json:"username"`
	DisplayName string            `gorm:"type:text;not null" json:"display_name"`
	Email       string            `gorm:"type:text" json:"email,omitempty"`
	Phone       string            `gorm:"type:text" json:"phone,omitempty"`
	Role        actorcontext.Role `gorm:"type:text;not null;index" json:"role"`
	Active      bool              `gorm:"not null" json:"active"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }
