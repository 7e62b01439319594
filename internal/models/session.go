package models

import "time"

// Session is one refresh-token login. Deleting the row revokes the token.
// Only the SHA-256 hash of the refresh token is stored.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	TokenHash string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	UserAgent string    `gorm:"size:255" json:"user_agent,omitempty"`
	IP        string    `gorm:"size:64" json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName maps sessions to the user_sessions table.
func (Session) TableName() string { return "user_sessions" }
