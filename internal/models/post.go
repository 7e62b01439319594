package models

import "time"

// Post represents a post on the board. Deleting a post removes the row and its likes.
//
// Username, Avatar, LikeCount and HasLiked are read-only columns computed by
// feed queries.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AuthorID  uint      `gorm:"not null;index" json:"author_id"`
	Author    User      `gorm:"foreignKey:AuthorID" json:"-"`
	Title     *string   `json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	NSFW      bool      `gorm:"column:nsfw;not null;default:false" json:"nsfw"`
	Sensitive bool      `gorm:"not null;default:false" json:"sensitive"`
	Username  string    `gorm:"->;-:migration;column:username" json:"username"`
	Avatar    string    `gorm:"->;-:migration;column:avatar" json:"avatar"`
	LikeCount int64     `gorm:"->;-:migration;column:like_count" json:"like_count"`
	HasLiked  bool      `gorm:"->;-:migration;column:has_liked" json:"has_liked"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}
