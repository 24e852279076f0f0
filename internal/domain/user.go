package domain

import "time"

// User represents a registered account of the system. The password hash
// never leaves the service layer.
type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
