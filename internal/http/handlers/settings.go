package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/micro-ha/srun-guard/internal/model"
	"github.com/micro-ha/srun-guard/internal/storage"
)

// GetSettings returns the stored settings without the password.
func (a *API) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.settings.Settings())
}

// PutSettings stores credentials and triggers a poll so that a pending
// login happens right away.
func (a *API) PutSettings(w http.ResponseWriter, r *http.Request) {
	var payload model.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	view, err := a.settings.Save(r.Context(), payload)
	if errors.Is(err, storage.ErrInvalidSettings) {
		writeError(w, http.StatusBadRequest, "invalid_settings", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "save_failed", err.Error())
		return
	}
	a.monitor.Refresh()
	writeJSON(w, http.StatusOK, view)
}

// DeleteSettings removes the stored credentials.
func (a *API) DeleteSettings(w http.ResponseWriter, r *http.Request) {
	if err := a.settings.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "delete_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// GetProfile returns the active endpoint profile.
func (a *API) GetProfile(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.profile.Profile())
}

// ListProfiles returns the known profile names.
func (a *API) ListProfiles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  a.profiles,
		"active": a.profile.Profile().Name,
	})
}
