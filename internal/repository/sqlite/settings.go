package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/model"
	"github.com/sakif/comment-autoreply/internal/repository"
)

// SettingsDB stores the single automation rule per user as a plain key/value row.
type SettingsDB struct {
	conn *sql.DB
}

var _ repository.SettingsRepository = (*SettingsDB)(nil)

// Upsert atomically replaces the user's rule.
func (s *SettingsDB) Upsert(ctx context.Context, settings *model.AutomationSettings) error {
	settings.UpdatedAt = time.Now().UTC()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO automation_settings (user_id, keyword, message, enabled, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			keyword    = excluded.keyword,
			message    = excluded.message,
			enabled    = excluded.enabled,
			updated_at = excluded.updated_at`,
		settings.UserID,
		settings.Keyword,
		settings.AutoReplyMessage,
		settings.Enabled,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting automation settings for user %s: %w", settings.UserID, err)
	}

	return nil
}

// GetByUserID returns apperror.ErrNotFound when no rule is configured.
func (s *SettingsDB) GetByUserID(ctx context.Context, userID string) (*model.AutomationSettings, error) {
	var settings model.AutomationSettings

	err := s.conn.QueryRowContext(ctx,
		`SELECT user_id, keyword, message, enabled, updated_at
		 FROM automation_settings WHERE user_id = ?`,
		userID,
	).Scan(
		&settings.UserID,
		&settings.Keyword,
		&settings.AutoReplyMessage,
		&settings.Enabled,
		&settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("automation settings", userID)
		}
		return nil, fmt.Errorf("sqlite: getting automation settings for user %s: %w", userID, err)
	}

	return &settings, nil
}
