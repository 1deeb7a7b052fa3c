package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/micro-ha/srun-guard/internal/model"
	"github.com/micro-ha/srun-guard/internal/monitor"
)

// Monitor is the status monitor surface used by the API.
type Monitor interface {
	Status() model.NetworkStatus
	State() monitor.State
	Refresh()
	Login(ctx context.Context) (model.LoginOutcome, error)
	Logout(ctx context.Context) (model.LoginOutcome, error)
}

// Settings reads and writes the operator credentials.
type Settings interface {
	Settings() model.Settings
	Save(ctx context.Context, update model.SettingsUpdate) (model.Settings, error)
	Clear(ctx context.Context) error
}

// History lists persisted transitions and auth attempts.
type History interface {
	ListStatus(ctx context.Context, limit int) ([]model.StatusRecord, error)
	ListAuthAttempts(ctx context.Context, limit int) ([]model.AuthAttempt, error)
}

// ProfileSource exposes the active endpoint profile.
type ProfileSource interface {
	Profile() model.EndpointProfile
}

// API groups HTTP handlers and dependencies.
type API struct {
	monitor  Monitor
	settings Settings
	history  History
	profile  ProfileSource
	profiles []string
	hub      *Hub
	logger   *slog.Logger
}

// New creates HTTP handlers with explicit dependencies.
func New(
	mon Monitor,
	settings Settings,
	history History,
	profile ProfileSource,
	profiles []string,
	hub *Hub,
	logger *slog.Logger,
) *API {
	return &API{
		monitor:  mon,
		settings: settings,
		history:  history,
		profile:  profile,
		profiles: profiles,
		hub:      hub,
		logger:   logger,
	}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports service liveness and credential status.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"configured": a.settings.Settings().Configured,
		"running":    a.monitor.State().Running,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
