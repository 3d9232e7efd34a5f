package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account holder. Password holds the bcrypt hash and never
// leaves the server.
type User struct {
	Base
	Name            string     `gorm:"size:100;not null" json:"name"`
	Email           string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password        string     `gorm:"size:255;not null" json:"-"`
	Role            string     `gorm:"size:20;not null" json:"role"` // user, admin
	PredictionCount int        `gorm:"not null" json:"predictionCount"`
	IsActive        bool       `gorm:"not null" json:"isActive"`
	LastLogin       *time.Time `json:"lastLogin"`
}

func (User) TableName() string { return "users" }

func (u *User) Clone() User {
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return c
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Ref returns the populated form of u. Email is included only when asked.
func (u *User) Ref(withEmail bool) *UserRef {
	ref := &UserRef{ID: u.ID, Name: u.Name}
	if withEmail {
		ref.Email = u.Email
	}
	return ref
}
