package model

import "time"

// NetworkState is the connectivity state reported by the gateway.
type NetworkState string

const (
	StateChecking NetworkState = "checking"
	StateOnline   NetworkState = "online"
	StateOffline  NetworkState = "offline"
	StateError    NetworkState = "error"
)

// NetworkStatus is one status-check result.
type NetworkStatus struct {
	State         NetworkState `json:"state"`
	Username      string       `json:"username,omitempty"`
	IPAddress     string       `json:"ip_address,omitempty"`
	UsedBytes     uint64       `json:"used_bytes"`
	OnlineSeconds uint64       `json:"online_seconds"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CheckedAt     time.Time    `json:"checked_at"`
}

// Checking is the initial status before the first poll completes.
func Checking() NetworkStatus {
	return NetworkStatus{State: StateChecking}
}

// Offline reports an unauthenticated client.
func Offline() NetworkStatus {
	return NetworkStatus{State: StateOffline}
}

// Online reports an authenticated session with its traffic counters.
func Online(username, ip string, usedBytes, onlineSeconds uint64) NetworkStatus {
	return NetworkStatus{
		State:         StateOnline,
		Username:      username,
		IPAddress:     ip,
		UsedBytes:     usedBytes,
		OnlineSeconds: onlineSeconds,
	}
}

// Failure reports a status check that could not reach the gateway.
func Failure(message string) NetworkStatus {
	return NetworkStatus{State: StateError, ErrorMessage: message}
}

// IsOnline reports whether the state is online.
func (s NetworkStatus) IsOnline() bool {
	return s.State == StateOnline
}

// Normalize zeroes session fields for every state other than online.
func (s NetworkStatus) Normalize() NetworkStatus {
	if s.State == StateOnline {
		s.ErrorMessage = ""
		return s
	}
	s.Username = ""
	s.IPAddress = ""
	s.UsedBytes = 0
	s.OnlineSeconds = 0
	if s.State != StateError {
		s.ErrorMessage = ""
	}
	return s
}

// Describe renders a short operator-facing summary.
func (s NetworkStatus) Describe() string {
	switch s.State {
	case StateOnline:
		return "online: " + s.Username + " (" + s.IPAddress + "), used " +
			FormatBytes(s.UsedBytes) + ", " + FormatDuration(s.OnlineSeconds)
	case StateOffline:
		return "offline"
	case StateChecking:
		return "checking"
	case StateError:
		return "error: " + s.ErrorMessage
	default:
		return string(s.State)
	}
}
