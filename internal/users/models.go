package users

import (
	"time"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID        int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	FirstName string `json:"first_name" gorm:"not null"`
	LastName  string `json:"last_name" gorm:"not null"`
	Password  string `json:"-" gorm:"not null"` // hide in json
	Role      Role   `json:"role" gorm:"not null;default:'USER'"`
	Email     string `json:"email" gorm:"uniqueIndex;not null"`

	// ReminderHours is how far ahead of a reservation start the user wants
	// a reminder. Zero means use the server default.
	ReminderHours int `json:"reminder_hours" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func IsValidRole(role string) bool {
	switch role {
	case string(RoleUser), string(RoleAdmin):
		return true
	default:
		return false
	}
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}
