package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/micro-ha/srun-guard/internal/model"
)

// ErrInvalidSettings is returned for an update without a username.
var ErrInvalidSettings = errors.New("username is required")

// Sealer protects the password column.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// CredentialStore serves the monitor's credential reads from memory and
// writes changes through to the settings row.
type CredentialStore struct {
	repo   *Repository
	sealer Sealer
	logger *slog.Logger
	now    func() time.Time

	// writeMu serialises Save and Clear; mu guards the cached fields.
	writeMu   sync.Mutex
	mu        sync.RWMutex
	username  string
	password  string
	autoLogin bool
	updatedAt time.Time
	stored    bool
}

// NewCredentialStore loads the stored settings. Without a row, auto-login
// defaults to on and nothing is configured.
func NewCredentialStore(ctx context.Context, repo *Repository, sealer Sealer, logger *slog.Logger) (*CredentialStore, error) {
	s := &CredentialStore{repo: repo, sealer: sealer, logger: logger, now: time.Now, autoLogin: true}

	row, err := repo.loadSettings(ctx)
	if errors.Is(err, ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	password, err := sealer.Open(row.PasswordSealed)
	if err != nil {
		// An unreadable password forces the operator to enter it again.
		logger.Warn("stored password could not be unsealed", "err", err)
		password = ""
	}
	s.username = row.Username
	s.password = password
	s.autoLogin = row.AutoLogin
	s.updatedAt = row.UpdatedAt
	s.stored = true
	return s, nil
}

// Snapshot reads the credentials and flags under a single lock so a
// concurrent Save never yields one account's username with another's
// password.
func (s *CredentialStore) Snapshot() model.CredentialSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CredentialSnapshot{
		Credentials: model.Credentials{Username: s.username, Password: s.password},
		Configured:  s.username != "" && s.password != "",
		AutoLogin:   s.autoLogin,
	}
}

func (s *CredentialStore) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *CredentialStore) Password() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.password
}

// HasConfigured is true once both username and password are stored.
func (s *CredentialStore) HasConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username != "" && s.password != ""
}

func (s *CredentialStore) AutoLoginEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoLogin
}

// Settings returns the password-free view.
func (s *CredentialStore) Settings() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := model.Settings{
		Username:    s.username,
		HasPassword: s.password != "",
		AutoLogin:   s.autoLogin,
		Configured:  s.username != "" && s.password != "",
	}
	if s.stored {
		updatedAt := s.updatedAt
		view.UpdatedAt = &updatedAt
	}
	return view
}

// Save persists an update and swaps the cached credentials.
func (s *CredentialStore) Save(ctx context.Context, update model.SettingsUpdate) (model.Settings, error) {
	username := strings.TrimSpace(update.Username)
	if username == "" {
		return model.Settings{}, ErrInvalidSettings
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	password := s.password
	autoLogin := s.autoLogin
	s.mu.RUnlock()
	if update.Password != nil {
		password = *update.Password
	}
	if update.AutoLogin != nil {
		autoLogin = *update.AutoLogin
	}

	sealed, err := s.sealer.Seal(password)
	if err != nil {
		return model.Settings{}, fmt.Errorf("seal password: %w", err)
	}
	row := settingsRow{
		Username:       username,
		PasswordSealed: sealed,
		AutoLogin:      autoLogin,
		UpdatedAt:      s.now().UTC(),
	}
	if err := s.repo.saveSettings(ctx, row); err != nil {
		return model.Settings{}, err
	}

	s.mu.Lock()
	s.username = username
	s.password = password
	s.autoLogin = autoLogin
	s.updatedAt = row.UpdatedAt
	s.stored = true
	s.mu.Unlock()

	s.logger.Info("settings saved", "username", username, "auto_login", autoLogin)
	return s.Settings(), nil
}

// Clear removes the stored credentials.
func (s *CredentialStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.repo.deleteSettings(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.username = ""
	s.password = ""
	s.autoLogin = true
	s.updatedAt = time.Time{}
	s.stored = false
	s.mu.Unlock()

	s.logger.Info("settings cleared")
	return nil
}
