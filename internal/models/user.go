package models

import "time"

// User represents a registered account. The hashed password is never
// serialized in API responses.
type User struct {
	ID             int       `json:"id" example:"1"`
	Username       string    `json:"username" example:"janedoe"`
	Email          string    `json:"email" example:"jane@example.com"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `json:"is_active" example:"true"`
	CreatedAt      time.Time `json:"created_at"`
}
