package model

import (
	"encoding/json"
	"time"
)

// CredentialState is the lifecycle state of an Instagram account binding.
type CredentialState string

const (
	CredentialUnconfigured CredentialState = "unconfigured"
	// CredentialPending is the state while a live check is in flight. It
	// exists only within the validating request and is never stored: the
	// check either stores validated or leaves the prior record untouched.
	CredentialPending   CredentialState = "pending"
	CredentialValidated CredentialState = "validated"
	// CredentialInvalid marks a binding whose token the platform rejected after
	// it had been validated. Dispatch stays blocked until the user re-validates.
	CredentialInvalid CredentialState = "invalid"
)

// Credentials binds one user to one Instagram Business/Creator account.
//
// AccessToken is plaintext in memory only; the sqlite repository seals it
// before it touches disk.
type Credentials struct {
	UserID          string          `json:"-"`
	IGUserID        string          `json:"igUserId"`
	PageID          string          `json:"pageId"`
	AccessToken     string          `json:"accessToken,omitempty"`
	Username        string          `json:"username,omitempty"`
	State           CredentialState `json:"state"`
	LastValidatedAt *time.Time      `json:"lastValidation,omitempty"`
	LastError       string          `json:"lastError,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Validated reports whether dispatch may use these credentials.
func (c *Credentials) Validated() bool {
	return c != nil && c.State == CredentialValidated
}

// MarshalJSON adds the dashboard's "validated" flag next to the state.
func (c Credentials) MarshalJSON() ([]byte, error) {
	type plain Credentials
	return json.Marshal(struct {
		plain
		Validated bool `json:"validated"`
	}{plain(c), c.State == CredentialValidated})
}

// Redacted returns a copy that is safe to hand back to the dashboard.
func (c Credentials) Redacted() Credentials {
	c.AccessToken = ""
	return c
}
