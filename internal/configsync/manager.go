package configsync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/micro-ha/srun-guard/internal/model"
)

// ProfileSetter receives a changed profile.
type ProfileSetter interface {
	SetProfile(profile model.EndpointProfile)
}

type Manager struct {
	client *Client
	target ProfileSetter
	logger *slog.Logger

	mu         sync.RWMutex
	configured bool
	version    string
	profile    model.EndpointProfile
}

func NewManager(client *Client, target ProfileSetter, logger *slog.Logger) *Manager {
	return &Manager{client: client, target: target, logger: logger}
}

// Refresh reloads the profile and applies it to the target when its version
// changed. A failed reload keeps the previous profile.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	res, err := m.client.FetchProfile(ctx)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	changed := !m.configured || res.Version != m.version
	m.configured = true
	m.version = res.Version
	m.profile = res.Profile
	m.mu.Unlock()

	if changed && m.target != nil {
		m.target.SetProfile(res.Profile)
		m.logger.Info("endpoint profile applied", "profile", res.Profile.Name, "login_url", res.Profile.LoginURL)
	}
	return changed, nil
}

func (m *Manager) Get() (model.EndpointProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.configured {
		return model.EndpointProfile{}, false
	}
	return m.profile.Clone(), true
}
