package domain

import "time"

// User represents an account allowed to sign in.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
