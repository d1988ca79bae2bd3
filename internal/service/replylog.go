package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/model"
	"github.com/sakif/comment-autoreply/internal/repository"
)

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 200
)

// ReplyLogService is the read side of the reply log.
type ReplyLogService struct {
	repo repository.ReplyLogRepository
}

func NewReplyLogService(repo repository.ReplyLogRepository) *ReplyLogService {
	return &ReplyLogService{repo: repo}
}

// ParseStatusFilter accepts "", "all", "success", "failure" and the
// dashboard's "failed".
func ParseStatusFilter(raw string) (model.ReplyStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all":
		return "", nil
	case "success":
		return model.ReplySuccess, nil
	case "failure", "failed":
		return model.ReplyFailure, nil
	default:
		return "", apperror.ValidationFailed("status", "status must be one of all, success, failure")
	}
}

// ListReplyLogs returns the user's entries newest first. A non-positive
// limit means the default; larger limits are clamped.
func (s *ReplyLogService) ListReplyLogs(ctx context.Context, userID, status string, limit, offset int) ([]model.ReplyLog, error) {
	filter, err := ParseStatusFilter(status)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = DefaultLogLimit
	}
	limit = min(limit, MaxLogLimit)
	offset = max(offset, 0)

	logs, err := s.repo.ListByUser(ctx, userID, repository.LogFilter{
		Status:      filter,
		ListOptions: repository.ListOptions{Limit: limit, Offset: offset},
	})
	if err != nil {
		return nil, fmt.Errorf("service/replylog: listing for %s: %w", userID, err)
	}
	return logs, nil
}
