package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/micro-ha/srun-guard/internal/model"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (r *Repository) InsertStatus(ctx context.Context, status model.NetworkStatus) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO status_history (state, username, ip_address, used_bytes, online_seconds, error_message, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(status.State),
		nullString(status.Username),
		nullString(status.IPAddress),
		int64(status.UsedBytes),
		int64(status.OnlineSeconds),
		nullString(status.ErrorMessage),
		formatTime(status.CheckedAt),
	)
	if err != nil {
		return fmt.Errorf("insert status: %w", err)
	}
	return nil
}

func (r *Repository) InsertAuthAttempt(ctx context.Context, attempt model.AuthAttempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_attempts (operation, username, result, kind, code, message, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(attempt.Operation),
		nullString(attempt.Username),
		string(attempt.Result),
		nullString(string(attempt.Kind)),
		nullString(attempt.Code),
		nullString(attempt.Message),
		formatTime(attempt.At),
	)
	if err != nil {
		return fmt.Errorf("insert auth attempt: %w", err)
	}
	return nil
}

// ListStatus returns the newest transitions first.
func (r *Repository) ListStatus(ctx context.Context, limit int) ([]model.StatusRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, state, username, ip_address, used_bytes, online_seconds, error_message, checked_at
		FROM status_history ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.StatusRecord, 0)
	for rows.Next() {
		var (
			item                    model.StatusRecord
			state, checkedAt        string
			username, ip, errorText sql.NullString
			usedBytes, seconds      int64
		)
		if err := rows.Scan(&item.ID, &state, &username, &ip, &usedBytes, &seconds, &errorText, &checkedAt); err != nil {
			return nil, err
		}
		item.State = model.NetworkState(state)
		item.Username = username.String
		item.IPAddress = ip.String
		item.UsedBytes = uint64(usedBytes)
		item.OnlineSeconds = uint64(seconds)
		item.ErrorMessage = errorText.String
		item.CheckedAt = parseTime(checkedAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListAuthAttempts returns the newest attempts first.
func (r *Repository) ListAuthAttempts(ctx context.Context, limit int) ([]model.AuthAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, operation, username, result, kind, code, message, at
		FROM auth_attempts ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.AuthAttempt, 0)
	for rows.Next() {
		var (
			item                          model.AuthAttempt
			operation, result, at         string
			username, kind, code, message sql.NullString
		)
		if err := rows.Scan(&item.ID, &operation, &username, &result, &kind, &code, &message, &at); err != nil {
			return nil, err
		}
		item.Operation = model.EventType(operation)
		item.Username = username.String
		item.Result = model.LoginResult(result)
		item.Kind = model.FailureKind(kind.String)
		item.Code = code.String
		item.Message = message.String
		item.At = parseTime(at)
		items = append(items, item)
	}
	return items, rows.Err()
}

// Prune keeps the newest keep rows of both history tables.
func (r *Repository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	var total int64
	for _, table := range []string{"status_history", "auth_attempts"} {
		res, err := r.db.ExecContext(ctx, "DELETE FROM "+table+
			" WHERE id NOT IN (SELECT id FROM "+table+" ORDER BY id DESC LIMIT ?)", keep)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		if rows, _ := res.RowsAffected(); rows > 0 {
			total += rows
		}
	}
	return total, nil
}
