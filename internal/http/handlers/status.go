package handlers

import (
	"errors"
	"net/http"

	"github.com/micro-ha/srun-guard/internal/model"
	"github.com/micro-ha/srun-guard/internal/monitor"
)

// GetStatus returns the last status snapshot and monitor bookkeeping.
func (a *API) GetStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": a.monitor.Status(),
		"state":  a.monitor.State(),
	})
}

// Refresh requests an immediate poll.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	a.monitor.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}

// Login authenticates with the stored credentials.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	out, err := a.monitor.Login(r.Context())
	a.writeOutcome(w, out, err)
}

// Logout ends the current session.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	out, err := a.monitor.Logout(r.Context())
	a.writeOutcome(w, out, err)
}

func (a *API) writeOutcome(w http.ResponseWriter, out model.LoginOutcome, err error) {
	switch {
	case errors.Is(err, monitor.ErrBusy):
		writeError(w, http.StatusConflict, "busy", "Another gateway operation is in progress")
	case errors.Is(err, monitor.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "stopped", "Monitor is shutting down")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "operation_failed", err.Error())
	case out.Kind == model.KindConfig:
		writeError(w, http.StatusConflict, "not_configured", "Credentials not configured")
	default:
		writeJSON(w, http.StatusOK, out)
	}
}
