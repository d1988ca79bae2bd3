package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/model"
	"github.com/sakif/comment-autoreply/internal/repository"
	"github.com/sakif/comment-autoreply/internal/webhook"
)

// Submitter hands an event to the reply pipeline without waiting.
// *dispatch.Dispatcher satisfies it.
type Submitter interface {
	TrySubmit(userID string, ev model.CommentEvent) error
}

// IngestReport summarizes one webhook delivery.
type IngestReport struct {
	Submitted      int
	Malformed      int // comment changes missing an id or text
	UnknownAccount int
	OwnComments    int
	Deferred       int // refused by a full or stopped dispatcher
}

// IngestionService authenticates webhook deliveries and routes each comment
// to the owning user's lane.
type IngestionService struct {
	appSecret   string
	verifyToken string
	creds       repository.CredentialRepository
	dispatcher  Submitter
	logger      *slog.Logger
}

func NewIngestionService(appSecret, verifyToken string, creds repository.CredentialRepository, dispatcher Submitter, logger *slog.Logger) *IngestionService {
	return &IngestionService{
		appSecret:   appSecret,
		verifyToken: verifyToken,
		creds:       creds,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// VerifySubscription answers the platform's subscription handshake.
func (s *IngestionService) VerifySubscription(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || challenge == "" || s.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(s.verifyToken)) != 1 {
		return "", apperror.Forbidden("webhook verification failed")
	}
	return challenge, nil
}

// Ingest verifies signature over the raw body, extracts comment events and
// submits them. A bad signature or body is rejected before anything is
// looked up. An event the dispatcher cannot take right now does not hold up
// the rest; once all are tried the delivery fails as transient so the
// platform sends it again.
func (s *IngestionService) Ingest(ctx context.Context, body []byte, signature string) (IngestReport, error) {
	var report IngestReport

	if err := webhook.VerifySignature(s.appSecret, body, signature); err != nil {
		s.logger.Warn("webhook signature rejected", slog.String("error", err.Error()))
		return report, apperror.Unauthenticated("invalid webhook signature", err)
	}

	extraction, err := webhook.Parse(body)
	if err != nil {
		s.logger.Warn("malformed webhook payload", slog.String("error", err.Error()))
		return report, &apperror.AppError{
			Err:     apperror.ErrValidation,
			Message: "malformed webhook payload",
			Cause:   err,
		}
	}
	report.Malformed = extraction.Skipped

	var deferErr error

	for _, ev := range extraction.Events {
		owner, err := s.creds.GetByIGUserID(ctx, ev.AccountID)
		if errors.Is(err, apperror.ErrNotFound) {
			report.UnknownAccount++
			s.logger.Warn("webhook for unknown instagram account",
				slog.String("igUserId", ev.AccountID),
				slog.String("commentId", ev.CommentID),
			)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("service/webhook: resolving account %s: %w", ev.AccountID, err)
		}

		if ev.CommenterID != "" && ev.CommenterID == owner.IGUserID {
			report.OwnComments++
			continue
		}

		if err := s.dispatcher.TrySubmit(owner.UserID, ev); err != nil {
			report.Deferred++
			deferErr = err
			s.logger.Warn("comment not queued",
				slog.String("userId", owner.UserID),
				slog.String("commentId", ev.CommentID),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Submitted++
	}

	s.logger.Debug("webhook ingested",
		slog.Int("submitted", report.Submitted),
		slog.Int("malformed", report.Malformed),
		slog.Int("unknownAccount", report.UnknownAccount),
		slog.Int("ownComments", report.OwnComments),
		slog.Int("deferred", report.Deferred),
	)

	// Asking for redelivery is safe: queued comments are deduplicated by id.
	if deferErr != nil {
		return report, apperror.Transient("reply dispatcher busy, retry delivery", deferErr)
	}
	return report, nil
}
