package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Role string

const (
	RoleReader Role = "reader"
	RoleAdmin  Role = "admin"
)

type User struct {
	gorm.Model
	Email        string    `gorm:"size:250;uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Name         string    `gorm:"size:250;not null"`
	Role         Role      `gorm:"size:16;not null;default:reader;uniqueIndex:idx_users_single_admin,where:role = 'admin'"`
	Posts        []Post    `gorm:"foreignKey:AuthorID"`
	Comments     []Comment `gorm:"foreignKey:AuthorID"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type Post struct {
	gorm.Model
	AuthorID uint   `gorm:"index;not null"`
	Author   User   `gorm:"constraint:OnDelete:RESTRICT"`
	Title    string `gorm:"size:250;uniqueIndex;not null"`
	Subtitle string `gorm:"size:250;not null"`
	// long-form calendar date of creation, e.g. "March 04, 2024"
	Date     string    `gorm:"size:250;not null"`
	Body     string    `gorm:"type:text;not null"`
	ImgURL   string    `gorm:"size:250;not null"`
	Comments []Comment `gorm:"foreignKey:BlogID;constraint:OnDelete:CASCADE"`
}

func (Post) TableName() string {
	return "blog_posts"
}

type Comment struct {
	gorm.Model
	Text     string `gorm:"size:500;not null"`
	AuthorID uint   `gorm:"index;not null"`
	Author   User   `gorm:"constraint:OnDelete:RESTRICT"`
	BlogID   uint   `gorm:"index;not null"`
}

// Session is a server-side session record. UserID is nil for anonymous visitors.
type Session struct {
	Token     string `gorm:"primaryKey;size:64"`
	UserID    *uint  `gorm:"index"`
	CSRFToken string `gorm:"size:64;not null"`
	Flashes   datatypes.JSON
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
