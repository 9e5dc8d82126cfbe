package models

import "time"

const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
)

type AdminUser struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;size:191;not null" json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Role         string     `gorm:"not null;size:32" json:"role"`
	Active       bool       `json:"active"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
