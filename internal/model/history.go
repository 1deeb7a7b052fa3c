package model

import "time"

// StatusRecord is one persisted state transition.
type StatusRecord struct {
	ID int64 `json:"id"`
	NetworkStatus
}

// AuthAttempt is one persisted login or logout result.
type AuthAttempt struct {
	ID        int64     `json:"id"`
	Operation EventType `json:"operation"`
	Username  string    `json:"username,omitempty"`
	LoginOutcome
	At time.Time `json:"at"`
}
