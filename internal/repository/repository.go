// Package repository declares the persistence contracts the services depend on.
// Every method is scoped by user id except the two lookups the webhook path
// needs (GetByIGUserID, ExistsForComment).
package repository

import (
	"context"

	"github.com/sakif/comment-autoreply/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// LogFilter narrows a reply log listing. An empty Status means all entries.
type LogFilter struct {
	Status model.ReplyStatus
	ListOptions
}

type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

type CredentialRepository interface {
	// Upsert replaces the user's single binding.
	Upsert(ctx context.Context, creds *model.Credentials) error
	GetByUserID(ctx context.Context, userID string) (*model.Credentials, error)
	GetByIGUserID(ctx context.Context, igUserID string) (*model.Credentials, error)
	// MarkInvalid downgrades a binding after the platform rejected its token.
	MarkInvalid(ctx context.Context, userID, reason string) error
}

type SettingsRepository interface {
	Upsert(ctx context.Context, settings *model.AutomationSettings) error
	GetByUserID(ctx context.Context, userID string) (*model.AutomationSettings, error)
}

type ReplyLogRepository interface {
	// Append inserts entry unless a row with the same comment id exists, in
	// which case it returns apperror.ErrDuplicate and writes nothing.
	Append(ctx context.Context, entry *model.ReplyLog) error
	ExistsForComment(ctx context.Context, commentID string) (bool, error)
	ListByUser(ctx context.Context, userID string, filter LogFilter) ([]model.ReplyLog, error)
}
