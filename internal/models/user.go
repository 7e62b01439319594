// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a registered BearcatBoard account.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"column:password_hash;not null" json:"-"`
	Avatar       string         `json:"avatar"`
	ProfileURL   string         `json:"profile_url"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// PublicUser is the subset of a user returned by registration.
type PublicUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Public returns the fields safe to hand back to the registering client.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Email: u.Email}
}

// Profile is the publicly visible view of a user.
type Profile struct {
	ID         uint      `json:"id"`
	Username   string    `json:"username"`
	Avatar     string    `json:"avatar"`
	ProfileURL string    `json:"profile_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// Profile returns the public profile view of u.
func (u *User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		Username:   u.Username,
		Avatar:     u.Avatar,
		ProfileURL: u.ProfileURL,
		CreatedAt:  u.CreatedAt,
	}
}

// SessionUser is the identity carried by an access token.
type SessionUser struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}
