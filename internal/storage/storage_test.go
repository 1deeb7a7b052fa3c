package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-ha/srun-guard/internal/model"
)

// reverseSealer is a reversible stand-in for the AES sealer.
type reverseSealer struct{}

func (reverseSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	return "sealed:" + reverse(plaintext), nil
}

func (reverseSealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	body, ok := strings.CutPrefix(sealed, "sealed:")
	if !ok {
		return "", errors.New("not sealed")
	}
	return reverse(body), nil
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(context.Background(), filepath.Join(t.TempDir(), "srun.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestCredentialStoreDefaults(t *testing.T) {
	store, err := NewCredentialStore(context.Background(), newTestRepo(t), reverseSealer{}, testLogger())
	require.NoError(t, err)

	assert.False(t, store.HasConfigured())
	assert.True(t, store.AutoLoginEnabled())
	assert.Empty(t, store.Username())
	assert.Nil(t, store.Settings().UpdatedAt)
}

func TestCredentialStoreSaveAndReload(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store, err := NewCredentialStore(ctx, repo, reverseSealer{}, testLogger())
	require.NoError(t, err)

	view, err := store.Save(ctx, model.SettingsUpdate{Username: " stu1 ", Password: strPtr("pw!"), AutoLogin: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "stu1", view.Username)
	assert.True(t, view.HasPassword)
	assert.True(t, view.Configured)
	assert.False(t, view.AutoLogin)

	var sealed string
	require.NoError(t, repo.db.QueryRowContext(ctx, `SELECT password_sealed FROM settings`).Scan(&sealed))
	assert.NotContains(t, sealed, "pw!")

	reloaded, err := NewCredentialStore(ctx, repo, reverseSealer{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "stu1", reloaded.Username())
	assert.Equal(t, "pw!", reloaded.Password())
	assert.False(t, reloaded.AutoLoginEnabled())
	assert.True(t, reloaded.HasConfigured())
}

func TestCredentialStoreKeepsPasswordWhenOmitted(t *testing.T) {
	ctx := context.Background()
	store, err := NewCredentialStore(ctx, newTestRepo(t), reverseSealer{}, testLogger())
	require.NoError(t, err)

	_, err = store.Save(ctx, model.SettingsUpdate{Username: "stu1", Password: strPtr("pw")})
	require.NoError(t, err)
	_, err = store.Save(ctx, model.SettingsUpdate{Username: "stu2"})
	require.NoError(t, err)

	assert.Equal(t, "stu2", store.Username())
	assert.Equal(t, "pw", store.Password())
	assert.True(t, store.AutoLoginEnabled())

	_, err = store.Save(ctx, model.SettingsUpdate{Username: "  "})
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestCredentialStoreSnapshotNeverMixesAccounts(t *testing.T) {
	ctx := context.Background()
	store, err := NewCredentialStore(ctx, newTestRepo(t), reverseSealer{}, testLogger())
	require.NoError(t, err)
	_, err = store.Save(ctx, model.SettingsUpdate{Username: "alice", Password: strPtr("alice-pw")})
	require.NoError(t, err)

	passwords := map[string]string{"alice": "alice-pw", "bob": "bob-pw"}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < 200; i++ {
			username := "alice"
			if i%2 == 1 {
				username = "bob"
			}
			password := passwords[username]
			if _, err := store.Save(ctx, model.SettingsUpdate{Username: username, Password: &password}); err != nil {
				t.Errorf("save %s: %v", username, err)
				return
			}
		}
	}()

	mixed := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		snap := store.Snapshot()
		if passwords[snap.Username] != snap.Password {
			mixed++
		}
		assert.True(t, snap.Configured)
	}
	wg.Wait()
	assert.Zero(t, mixed)
}

func TestCredentialStoreClear(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	store, err := NewCredentialStore(ctx, repo, reverseSealer{}, testLogger())
	require.NoError(t, err)
	_, err = store.Save(ctx, model.SettingsUpdate{Username: "stu1", Password: strPtr("pw"), AutoLogin: boolPtr(false)})
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx))
	assert.False(t, store.HasConfigured())
	assert.True(t, store.AutoLoginEnabled())

	_, err = repo.loadSettings(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCredentialStoreUnreadablePassword(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.saveSettings(ctx, settingsRow{
		Username:       "stu1",
		PasswordSealed: "garbage",
		AutoLogin:      true,
		UpdatedAt:      time.Now(),
	}))

	store, err := NewCredentialStore(ctx, repo, reverseSealer{}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "stu1", store.Username())
	assert.False(t, store.HasConfigured())
	assert.False(t, store.Settings().HasPassword)
}

func TestHistoryListAndPrune(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		status := model.Offline()
		if i%2 == 0 {
			status = model.Online("stu1", "10.0.0.5", uint64(i)*1024, uint64(i))
		}
		status.CheckedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.InsertStatus(ctx, status))
	}
	require.NoError(t, repo.InsertAuthAttempt(ctx, model.AuthAttempt{
		Operation:    model.EventLogin,
		Username:     "stu1",
		LoginOutcome: model.LoginOutcome{Result: model.ResultFailed, Message: "gateway error E2531", Code: "E2531", Kind: model.KindAuth},
		At:           base,
	}))

	items, err := repo.ListStatus(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.StateOnline, items[0].State)
	assert.Equal(t, uint64(4096), items[0].UsedBytes)
	assert.Equal(t, base.Add(4*time.Minute), items[0].CheckedAt)
	assert.Equal(t, model.StateOffline, items[1].State)
	assert.Empty(t, items[1].IPAddress)

	attempts, err := repo.ListAuthAttempts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "E2531", attempts[0].Code)
	assert.Equal(t, model.KindAuth, attempts[0].Kind)
	assert.Equal(t, model.EventLogin, attempts[0].Operation)

	removed, err := repo.Prune(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	items, err = repo.ListStatus(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

type fixedUsername string

func (f fixedUsername) Username() string { return string(f) }

func TestRecorderStoresTransitionsAndAttempts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	recorder := NewRecorder(repo, fixedUsername("stu1"), 100, testLogger())
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	online := model.Online("stu1", "10.0.0.5", 1, 1)
	offline := model.Offline()
	failed := model.Failed(model.KindAuth, "gateway error E2531")

	events := make(chan model.Event, 8)
	events <- model.Event{Type: model.EventStatus, Status: &online, At: at}
	events <- model.Event{Type: model.EventStatus, Status: &online, At: at.Add(time.Second)}
	events <- model.Event{Type: model.EventStatus, Status: &offline, At: at.Add(2 * time.Second)}
	events <- model.Event{Type: model.EventDropped, Status: &offline, At: at.Add(2 * time.Second)}
	events <- model.Event{Type: model.EventLogin, Outcome: &failed, At: at.Add(3 * time.Second)}
	close(events)

	recorder.Run(ctx, events)

	items, err := repo.ListStatus(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, model.StateOffline, items[0].State)
	assert.Equal(t, at.Add(2*time.Second), items[0].CheckedAt)
	assert.Equal(t, model.StateOnline, items[1].State)

	attempts, err := repo.ListAuthAttempts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "stu1", attempts[0].Username)
	assert.Equal(t, model.ResultFailed, attempts[0].Result)
}

func TestRecorderPrunesPastMaxRows(t *testing.T) {
	repo := newTestRepo(t)
	recorder := NewRecorder(repo, nil, 2, testLogger())
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	recorder.now = func() time.Time { return clock }

	for i := 0; i < 4; i++ {
		status := model.Online("stu1", "10.0.0."+string(rune('1'+i)), 0, 0)
		recorder.Record(model.Event{Type: model.EventStatus, Status: &status, At: clock})
		clock = clock.Add(2 * time.Minute)
	}

	items, err := repo.ListStatus(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "10.0.0.4", items[0].IPAddress)
}
