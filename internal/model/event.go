package model

import "time"

// EventType names a monitor notification.
type EventType string

const (
	EventStatus         EventType = "status"
	EventDropped        EventType = "dropped"
	EventStillOffline   EventType = "still_offline"
	EventLogin          EventType = "login"
	EventLogout         EventType = "logout"
	EventAuthFailed     EventType = "auth_failed"
	EventConfigRequired EventType = "config_required"
)

// Event is published by the status monitor to its subscribers.
type Event struct {
	Type    EventType      `json:"type"`
	Status  *NetworkStatus `json:"status,omitempty"`
	Outcome *LoginOutcome  `json:"outcome,omitempty"`
	At      time.Time      `json:"at"`
}
