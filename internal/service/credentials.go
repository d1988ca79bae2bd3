package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/graph"
	"github.com/sakif/comment-autoreply/internal/model"
	"github.com/sakif/comment-autoreply/internal/repository"
)

// AccountVerifier performs the live credential check. *graph.Client
// satisfies it.
type AccountVerifier interface {
	GetAccount(ctx context.Context, accessToken, igUserID string) (*graph.Account, error)
}

// CredentialService connects a user to an Instagram account.
//
// A record only ever becomes validated through ValidateCredentials, after the
// platform accepted the token for the given account. A failed validation
// writes nothing, so whatever the user had before stays in place.
type CredentialService struct {
	repo     repository.CredentialRepository
	verifier AccountVerifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewCredentialService(repo repository.CredentialRepository, verifier AccountVerifier, logger *slog.Logger) *CredentialService {
	return &CredentialService{
		repo:     repo,
		verifier: verifier,
		logger:   logger,
		now:      time.Now,
	}
}

// GetCredentials returns the user's binding with the access token removed.
// A user who never connected gets a record in CredentialUnconfigured.
func (s *CredentialService) GetCredentials(ctx context.Context, userID string) (*model.Credentials, error) {
	creds, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return &model.Credentials{State: model.CredentialUnconfigured}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("service/credentials: fetching for %s: %w", userID, err)
	}

	redacted := creds.Redacted()
	return &redacted, nil
}

// ValidateCredentials checks the token against the platform and, only on
// success, stores the binding as validated.
func (s *CredentialService) ValidateCredentials(ctx context.Context, userID, igUserID, pageID, accessToken string) (*model.Credentials, error) {
	igUserID = strings.TrimSpace(igUserID)
	pageID = strings.TrimSpace(pageID)
	accessToken = strings.TrimSpace(accessToken)

	switch {
	case igUserID == "":
		return nil, apperror.ValidationFailed("igUserId", "instagram user id is required")
	case pageID == "":
		return nil, apperror.ValidationFailed("pageId", "page id is required")
	case accessToken == "":
		return nil, apperror.ValidationFailed("accessToken", "access token is required")
	}

	owner, err := s.repo.GetByIGUserID(ctx, igUserID)
	switch {
	case err == nil && owner.UserID != userID:
		return nil, apperror.Conflict("instagram account", igUserID)
	case err != nil && !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/credentials: checking owner of %s: %w", igUserID, err)
	}

	creds := &model.Credentials{
		UserID:      userID,
		IGUserID:    igUserID,
		PageID:      pageID,
		AccessToken: accessToken,
		State:       model.CredentialPending,
	}

	account, err := s.verifier.GetAccount(ctx, creds.AccessToken, creds.IGUserID)
	if err != nil {
		s.logger.Warn("instagram credential check failed",
			slog.String("userId", userID),
			slog.String("igUserId", igUserID),
			slog.String("error", err.Error()),
		)
		return nil, verificationError(err)
	}
	if account.ID != igUserID {
		return nil, apperror.ValidationFailed("igUserId", "access token belongs to a different instagram account")
	}

	validatedAt := s.now().UTC()
	creds.Username = account.Username
	creds.State = model.CredentialValidated
	creds.LastValidatedAt = &validatedAt
	if err := s.repo.Upsert(ctx, creds); err != nil {
		return nil, fmt.Errorf("service/credentials: saving for %s: %w", userID, err)
	}

	s.logger.Info("instagram credentials validated",
		slog.String("userId", userID),
		slog.String("igUserId", igUserID),
		slog.String("username", account.Username),
	)

	redacted := creds.Redacted()
	return &redacted, nil
}

// verificationError maps a Graph failure to what the dashboard should see.
func verificationError(err error) error {
	switch {
	case errors.Is(err, apperror.ErrUnauthenticated):
		return &apperror.AppError{
			Err:     apperror.ErrValidation,
			Message: "instagram rejected the access token",
			Field:   "accessToken",
			Cause:   err,
		}
	case errors.Is(err, apperror.ErrTransient):
		return apperror.Transient("instagram is unavailable, try again shortly", err)
	case errors.Is(err, apperror.ErrValidation):
		return &apperror.AppError{
			Err:     apperror.ErrValidation,
			Message: "instagram account could not be verified with this token",
			Field:   "igUserId",
			Cause:   err,
		}
	default:
		return fmt.Errorf("service/credentials: verifying account: %w", err)
	}
}
