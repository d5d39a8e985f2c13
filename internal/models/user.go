package models

import (
	"time"
)

// User is a registered account. PublicID is the identifier exposed to
// clients; the numeric primary key never leaves the server.
type User struct {
	UserID       uint64 `gorm:"primaryKey;autoIncrement"`
	PublicID     string `gorm:"type:char(36);uniqueIndex;not null"`
	Username     string `gorm:"size:150;uniqueIndex;not null"`
	Email        string `gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Forms []Form `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
}

// TableName overrides the table name for User
func (User) TableName() string {
	return "users"
}

// PublicUser is the client-visible projection of a User.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Public returns the client-visible projection.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.PublicID,
		Username: u.Username,
		Email:    u.Email,
	}
}
