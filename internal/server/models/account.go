// Package models defines server-side data models persisted in the database.
package models

import "time"

// Account is a user account as stored in the users table.
type Account struct {
	ID                  int64
	Username            string
	Email               string
	PasswordHash        string
	DisplayName         string
	Phone               string
	Department          string
	Position            string
	Enabled             bool
	Locked              bool
	FailedLoginAttempts int
	LastLoginAt         *time.Time
	PasswordChangedAt   *time.Time
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedBy           string
	UpdatedAt           time.Time
	DeletedAt           *time.Time
	Version             int64
}

func (a *Account) IsLocked() bool  { return a.Locked }
func (a *Account) IsEnabled() bool { return a.Enabled }

// AccountFilter narrows an account listing. Empty strings and nil pointers
// match everything; text fields match by case-insensitive substring.
type AccountFilter struct {
	Username   string
	Email      string
	Department string
	Enabled    *bool
	Locked     *bool
}

// AccountUpdate carries the profile fields an administrator may change.
// Nil fields are left as they are.
type AccountUpdate struct {
	Email       *string
	DisplayName *string
	Phone       *string
	Department  *string
	Position    *string
	Enabled     *bool
}
