package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/auth"
	"github.com/sakif/comment-autoreply/internal/repository"
)

// AuthService sits between the OAuth handlers and the token service:
//
//	AuthHandler (HTTP) → AuthService → TokenService (JWT)
//	                                 ↘ UserRepository (profile lookup)
//
// Logging in creates no rows. The session subject is the provider's stable
// id; the profile is created later by the setup flow.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// AuthResult bundles what the callback handler needs to finish the login.
type AuthResult struct {
	UserID string
	Token  string
	// NeedsSetup is true until the user saves a profile.
	NeedsSetup bool
	// SuggestedName prefills the setup form.
	SuggestedName string
}

// CompleteLogin issues a session for identity.
func (s *AuthService) CompleteLogin(ctx context.Context, identity *auth.Identity) (*AuthResult, error) {
	if identity == nil || identity.UserID == "" {
		return nil, fmt.Errorf("service/auth: identity must carry a user id")
	}

	needsSetup := false
	if _, err := s.users.GetUserByID(ctx, identity.UserID); err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: checking profile %s: %w", identity.UserID, err)
		}
		needsSetup = true
	}

	token, err := s.tokens.Generate(identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", identity.UserID, err)
	}

	s.logger.Info("user authenticated",
		slog.String("userId", identity.UserID),
		slog.Bool("needsSetup", needsSetup),
	)

	return &AuthResult{
		UserID:        identity.UserID,
		Token:         token,
		NeedsSetup:    needsSetup,
		SuggestedName: identity.Login,
	}, nil
}

// SessionTTL is the lifetime of issued session tokens, used for the cookie's Max-Age.
func (s *AuthService) SessionTTL() int {
	return int(s.tokens.TTL().Seconds())
}
