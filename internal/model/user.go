// Package model defines the data structures used throughout the application.
package model

import "time"

// User is the dashboard profile of an authenticated account.
//
// The ID is the stable user id resolved by the identity provider (the subject
// of the session JWT). Every other entity in this package is scoped to it.
// A missing User row means the account has not finished the setup flow.
type User struct {
	ID        string    `json:"id"        db:"id"`
	Name      string    `json:"name"      db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
