package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/model"
	"github.com/sakif/comment-autoreply/internal/repository"
)

const (
	MaxKeywordLength      = 100
	MaxReplyMessageLength = 1000
)

// SettingsService owns the single keyword rule per user.
type SettingsService struct {
	repo   repository.SettingsRepository
	logger *slog.Logger
}

func NewSettingsService(repo repository.SettingsRepository, logger *slog.Logger) *SettingsService {
	return &SettingsService{repo: repo, logger: logger}
}

// GetAutomationSettings returns apperror.ErrNotFound when no rule exists.
func (s *SettingsService) GetAutomationSettings(ctx context.Context, userID string) (*model.AutomationSettings, error) {
	settings, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/settings: fetching rule for %s: %w", userID, err)
	}
	return settings, nil
}

// UpdateAutomationSettings validates and replaces the rule in one write, so
// the dispatcher never sees a keyword from one save paired with the message
// of another.
func (s *SettingsService) UpdateAutomationSettings(ctx context.Context, userID, keyword, message string, enabled bool) (*model.AutomationSettings, error) {
	keyword = strings.TrimSpace(keyword)
	message = strings.TrimSpace(message)

	switch {
	case keyword == "":
		return nil, apperror.ValidationFailed("keyword", "keyword is required")
	case utf8.RuneCountInString(keyword) > MaxKeywordLength:
		return nil, apperror.ValidationFailed("keyword",
			fmt.Sprintf("keyword must be %d characters or fewer", MaxKeywordLength))
	case message == "":
		return nil, apperror.ValidationFailed("autoReplyMessage", "auto-reply message is required")
	case utf8.RuneCountInString(message) > MaxReplyMessageLength:
		return nil, apperror.ValidationFailed("autoReplyMessage",
			fmt.Sprintf("auto-reply message must be %d characters or fewer", MaxReplyMessageLength))
	}

	settings := &model.AutomationSettings{
		UserID:           userID,
		Keyword:          keyword,
		AutoReplyMessage: message,
		Enabled:          enabled,
	}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, fmt.Errorf("service/settings: saving rule for %s: %w", userID, err)
	}

	s.logger.Info("automation settings updated",
		slog.String("userId", userID),
		slog.Bool("enabled", enabled),
	)
	return settings, nil
}
