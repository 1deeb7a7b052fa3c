package model

import "time"

// Settings is the operator-facing view of the stored credentials. The
// password itself is never part of it.
type Settings struct {
	Username    string     `json:"username"`
	HasPassword bool       `json:"has_password"`
	AutoLogin   bool       `json:"auto_login"`
	Configured  bool       `json:"configured"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// SettingsUpdate is a write to the credential store. A nil Password keeps
// the stored one.
type SettingsUpdate struct {
	Username  string  `json:"username"`
	Password  *string `json:"password,omitempty"`
	AutoLogin *bool   `json:"auto_login,omitempty"`
}

// CredentialSnapshot is one consistent read of the stored credentials and
// the flags that gate auto-login.
type CredentialSnapshot struct {
	Credentials
	Configured bool
	AutoLogin  bool
}
