package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/graph"
	"github.com/sakif/comment-autoreply/internal/model"
	"github.com/sakif/comment-autoreply/internal/repository"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================
//
// Hand-written in-memory fakes. Each stores copies so a test can't mutate
// the fake's state through a returned pointer. Set the *Err fields to
// simulate a database failure.

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeUserRepo struct {
	users     map[string]*model.User
	upsertErr error
	getErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Upsert(_ context.Context, user *model.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	now := time.Now()
	if existing, ok := f.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user profile", id)
	}
	result := *u
	return &result, nil
}

type fakeCredentialRepo struct {
	byUser    map[string]*model.Credentials
	upserts   int
	stored    []model.CredentialState
	upsertErr error
	lookupErr error
}

func newFakeCredentialRepo() *fakeCredentialRepo {
	return &fakeCredentialRepo{byUser: make(map[string]*model.Credentials)}
}

func (f *fakeCredentialRepo) Upsert(_ context.Context, c *model.Credentials) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for uid, other := range f.byUser {
		if uid != c.UserID && other.IGUserID == c.IGUserID {
			return apperror.Conflict("instagram account", c.IGUserID)
		}
	}
	f.upserts++
	f.stored = append(f.stored, c.State)
	stored := *c
	f.byUser[c.UserID] = &stored
	return nil
}

func (f *fakeCredentialRepo) GetByUserID(_ context.Context, userID string) (*model.Credentials, error) {
	c, ok := f.byUser[userID]
	if !ok {
		return nil, apperror.NotFound("credentials for user", userID)
	}
	result := *c
	return &result, nil
}

func (f *fakeCredentialRepo) GetByIGUserID(_ context.Context, igUserID string) (*model.Credentials, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, c := range f.byUser {
		if c.IGUserID == igUserID {
			result := *c
			return &result, nil
		}
	}
	return nil, apperror.NotFound("credentials for instagram account", igUserID)
}

func (f *fakeCredentialRepo) MarkInvalid(_ context.Context, userID, reason string) error {
	c, ok := f.byUser[userID]
	if !ok {
		return apperror.NotFound("credentials for user", userID)
	}
	c.State = model.CredentialInvalid
	c.LastError = reason
	return nil
}

type fakeSettingsRepo struct {
	byUser    map[string]*model.AutomationSettings
	upsertErr error
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{byUser: make(map[string]*model.AutomationSettings)}
}

func (f *fakeSettingsRepo) Upsert(_ context.Context, s *model.AutomationSettings) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	s.UpdatedAt = time.Now()
	stored := *s
	f.byUser[s.UserID] = &stored
	return nil
}

func (f *fakeSettingsRepo) GetByUserID(_ context.Context, userID string) (*model.AutomationSettings, error) {
	s, ok := f.byUser[userID]
	if !ok {
		return nil, apperror.NotFound("automation settings", userID)
	}
	result := *s
	return &result, nil
}

type fakeReplyLogRepo struct {
	entries    []model.ReplyLog
	lastFilter repository.LogFilter
}

func (f *fakeReplyLogRepo) Append(_ context.Context, e *model.ReplyLog) error {
	for _, existing := range f.entries {
		if existing.CommentID == e.CommentID {
			return apperror.Duplicate(e.CommentID)
		}
	}
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeReplyLogRepo) ExistsForComment(_ context.Context, commentID string) (bool, error) {
	for _, e := range f.entries {
		if e.CommentID == commentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeReplyLogRepo) ListByUser(_ context.Context, userID string, filter repository.LogFilter) ([]model.ReplyLog, error) {
	f.lastFilter = filter
	out := []model.ReplyLog{}
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.UserID != userID || (filter.Status != "" && e.Status != filter.Status) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// =========================================================================
// FAKE COLLABORATORS
// =========================================================================

type fakeVerifier struct {
	account *graph.Account
	err     error
	calls   int
}

func (f *fakeVerifier) GetAccount(_ context.Context, _, _ string) (*graph.Account, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.account, nil
}

type submitted struct {
	userID string
	event  model.CommentEvent
}

type fakeSubmitter struct {
	mu     sync.Mutex
	events []submitted
	err    error
	busy   map[string]bool // users whose lane refuses events
}

func (f *fakeSubmitter) TrySubmit(userID string, ev model.CommentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.busy[userID] {
		return errors.New("dispatch: lane buffer full")
	}
	f.events = append(f.events, submitted{userID, ev})
	return nil
}

func mustUpsertCreds(t *testing.T, repo *fakeCredentialRepo, c *model.Credentials) {
	t.Helper()
	if err := repo.Upsert(context.Background(), c); err != nil {
		t.Fatalf("seeding credentials: %v", err)
	}
}
