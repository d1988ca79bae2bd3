// Package service contains the business rules of the dashboard.
//
// Handlers parse HTTP and call a service; services validate, enforce the
// rules and call the repositories. Every service takes its repositories as
// interfaces so tests can inject in-memory fakes:
//
//	main.go creates:  DB → Repository → Service → Handler
//	At runtime:       Handler calls Service calls Repository calls DB
//
// Services return apperror values and never know about status codes; the
// handler package translates them.
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

const MaxProfileNameLength = 100

// ProfileService manages the dashboard profile that gates the setup flow.
type ProfileService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewProfileService(users repository.UserRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{users: users, logger: logger}
}

// GetProfile returns apperror.ErrNotFound until the user saves a profile.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: fetching profile %s: %w", userID, err)
	}
	return user, nil
}

// SaveProfile creates the profile on first call and renames it afterwards.
func (s *ProfileService) SaveProfile(ctx context.Context, userID, name string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if utf8.RuneCountInString(name) > MaxProfileNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or fewer", MaxProfileNameLength))
	}

	user := &model.User{ID: userID, Name: name}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/profile: saving profile %s: %w", userID, err)
	}

	s.logger.Info("profile saved", slog.String("userId", userID))
	return user, nil
}
