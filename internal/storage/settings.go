package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// settingsRow is the single persisted credentials row.
type settingsRow struct {
	Username       string
	PasswordSealed string
	AutoLogin      bool
	UpdatedAt      time.Time
}

func (r *Repository) loadSettings(ctx context.Context) (settingsRow, error) {
	var (
		row       settingsRow
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT username, password_sealed, auto_login, updated_at
		FROM settings WHERE id = 1`).Scan(&row.Username, &row.PasswordSealed, &row.AutoLogin, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return settingsRow{}, ErrNotFound
	}
	if err != nil {
		return settingsRow{}, fmt.Errorf("load settings: %w", err)
	}
	row.UpdatedAt = parseTime(updatedAt)
	return row, nil
}

func (r *Repository) saveSettings(ctx context.Context, row settingsRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (id, username, password_sealed, auto_login, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username=excluded.username,
			password_sealed=excluded.password_sealed,
			auto_login=excluded.auto_login,
			updated_at=excluded.updated_at`,
		row.Username, row.PasswordSealed, row.AutoLogin, formatTime(row.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (r *Repository) deleteSettings(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE id = 1`); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}
