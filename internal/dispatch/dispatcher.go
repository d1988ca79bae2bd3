// Package dispatch turns matched comment events into platform replies.
//
// Events are routed to a lane per user: one goroutine draining one buffered
// channel. A user's events are processed in arrival order while different
// users proceed independently. Lanes are created on demand and exit after
// sitting idle, so the goroutine count tracks active users, not total users.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/automation"
	"github.com/sakif/comment-autoreply/internal/model"
	"github.com/sakif/comment-autoreply/internal/repository"
)

var (
	ErrNotStarted = errors.New("dispatch: dispatcher not started")
	ErrStopped    = errors.New("dispatch: dispatcher stopped")
	ErrLaneFull   = errors.New("dispatch: lane buffer full")
)

const detailNotValidated = "credentials not validated"

// Replier posts a reply to a comment and classifies its own failures.
// *graph.Client satisfies it.
type Replier interface {
	ReplyToComment(ctx context.Context, accessToken, commentID, message string) (string, error)
	Retryable(err error) bool
}

// Outcome is what ProcessSync did with one event.
type Outcome int

const (
	// OutcomeDuplicate: the comment already has a log entry.
	OutcomeDuplicate Outcome = iota
	// OutcomeNoMatch: no enabled rule matched; nothing recorded.
	OutcomeNoMatch
	OutcomeReplied
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeReplied:
		return "replied"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result reports one processed event. Entry is the log row written, if any.
type Result struct {
	Outcome Outcome
	Entry   *model.ReplyLog
}

type lane struct {
	events chan model.CommentEvent
	// pending counts events reserved by Submit but not yet received by the
	// lane. Guarded by Dispatcher.mu.
	pending int
}

type Dispatcher struct {
	credentials repository.CredentialRepository
	settings    repository.SettingsRepository
	logs        repository.ReplyLogRepository
	replier     Replier
	cfg         Config
	logger      *slog.Logger

	mu      sync.Mutex
	lanes   map[string]*lane
	ctx     context.Context
	started bool
	stopped bool

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func New(
	credentials repository.CredentialRepository,
	settings repository.SettingsRepository,
	logs repository.ReplyLogRepository,
	replier Replier,
	cfg Config,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		credentials: credentials,
		settings:    settings,
		logs:        logs,
		replier:     replier,
		cfg:         cfg.withDefaults(),
		logger:      logger,
		lanes:       make(map[string]*lane),
		done:        make(chan struct{}),
	}
}

// Start enables Submit. Lane work runs under ctx's values but is not
// canceled with it; Stop is the shutdown path.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.mu.Lock()
		d.ctx = context.WithoutCancel(ctx)
		d.started = true
		d.mu.Unlock()

		d.logger.Info("reply dispatcher started",
			slog.Int("maxAttempts", d.cfg.MaxAttempts),
			slog.Duration("timeout", d.cfg.Timeout),
		)
	})
}

// Run starts the dispatcher and blocks until ctx is done, then stops it.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.Start(ctx)
	<-ctx.Done()
	d.Stop()
	return nil
}

// Stop rejects further submissions, lets every lane finish its queued events
// and waits for them to exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.logger.Info("stopping reply dispatcher")

		d.mu.Lock()
		d.stopped = true
		d.mu.Unlock()

		close(d.done)
		d.wg.Wait()
	})
}

// Submit queues ev on userID's lane. It blocks only while that lane's buffer
// is full, and never on another user's work.
func (d *Dispatcher) Submit(ctx context.Context, userID string, ev model.CommentEvent) error {
	l, err := d.reserve(userID)
	if err != nil {
		return err
	}

	select {
	case l.events <- ev:
		return nil
	case <-d.done:
		d.release(l)
		return ErrStopped
	case <-ctx.Done():
		d.release(l)
		return ctx.Err()
	}
}

// TrySubmit is Submit without waiting: a full lane returns ErrLaneFull at
// once, so one backed-up user cannot hold up a delivery carrying events for
// others.
func (d *Dispatcher) TrySubmit(userID string, ev model.CommentEvent) error {
	l, err := d.reserve(userID)
	if err != nil {
		return err
	}

	select {
	case l.events <- ev:
		return nil
	default:
		d.release(l)
		return ErrLaneFull
	}
}

// reserve finds or starts userID's lane and counts one pending send on it.
func (d *Dispatcher) reserve(userID string) (*lane, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.stopped:
		return nil, ErrStopped
	case !d.started:
		return nil, ErrNotStarted
	}

	l, ok := d.lanes[userID]
	if !ok {
		l = &lane{events: make(chan model.CommentEvent, d.cfg.LaneBuffer)}
		d.lanes[userID] = l
		d.wg.Add(1)
		go d.runLane(userID, l)
	}
	l.pending++
	return l, nil
}

func (d *Dispatcher) release(l *lane) {
	d.mu.Lock()
	l.pending--
	d.mu.Unlock()
}

// ActiveLanes reports the number of live lanes.
func (d *Dispatcher) ActiveLanes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lanes)
}

func (d *Dispatcher) runLane(userID string, l *lane) {
	defer d.wg.Done()

	idle := time.NewTimer(d.cfg.LaneIdle)
	defer idle.Stop()

	for {
		select {
		case ev := <-l.events:
			d.release(l)
			d.handle(userID, ev)
			idle.Reset(d.cfg.LaneIdle)

		case <-idle.C:
			d.mu.Lock()
			if l.pending == 0 && len(l.events) == 0 {
				delete(d.lanes, userID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			idle.Reset(d.cfg.LaneIdle)

		case <-d.done:
			d.drain(userID, l)
			return
		}
	}
}

// drain processes whatever is queued after Stop. A Submit that reserved a
// slot before Stop may still be mid-send, so the lane exits only once nothing
// is buffered and no reservation is outstanding.
func (d *Dispatcher) drain(userID string, l *lane) {
	for {
		select {
		case ev := <-l.events:
			d.release(l)
			d.handle(userID, ev)
			continue
		default:
		}

		d.mu.Lock()
		if l.pending == 0 && len(l.events) == 0 {
			delete(d.lanes, userID)
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		// The reserved sender either delivers or releases once it sees done.
		select {
		case ev := <-l.events:
			d.release(l)
			d.handle(userID, ev)
		case <-time.After(time.Millisecond):
		}
	}
}

func (d *Dispatcher) handle(userID string, ev model.CommentEvent) {
	res, err := d.ProcessSync(d.ctx, userID, ev)
	if err != nil {
		d.logger.Error("failed to process comment",
			slog.String("userId", userID),
			slog.String("commentId", ev.CommentID),
			slog.String("error", err.Error()),
		)
		return
	}

	d.logger.Debug("comment processed",
		slog.String("userId", userID),
		slog.String("commentId", ev.CommentID),
		slog.String("outcome", res.Outcome.String()),
	)
}

// ProcessSync runs the whole pipeline for one event on the caller's
// goroutine: idempotency check, rule evaluation, credential gate, reply with
// retry, and exactly one log entry for a matched comment. The returned error
// is reserved for storage failures; platform failures become failure entries.
func (d *Dispatcher) ProcessSync(ctx context.Context, userID string, ev model.CommentEvent) (Result, error) {
	seen, err := d.logs.ExistsForComment(ctx, ev.CommentID)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: checking comment %s: %w", ev.CommentID, err)
	}
	if seen {
		return Result{Outcome: OutcomeDuplicate}, nil
	}

	settings, err := d.settings.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return Result{}, fmt.Errorf("dispatch: loading rule for user %s: %w", userID, err)
	}

	match := automation.Evaluate(settings, ev.Text)
	if !match.Matched {
		return Result{Outcome: OutcomeNoMatch}, nil
	}

	creds, err := d.credentials.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return Result{}, fmt.Errorf("dispatch: loading credentials for user %s: %w", userID, err)
	}

	entry := &model.ReplyLog{
		UserID:         userID,
		CommentID:      ev.CommentID,
		MediaID:        ev.MediaID,
		Commenter:      commenter(ev),
		CommentSnippet: automation.Snippet(ev.Text, automation.SnippetLength),
		KeywordMatched: match.Keyword,
	}
	if !ev.Timestamp.IsZero() {
		at := ev.Timestamp.UTC()
		entry.CommentedAt = &at
	}

	if !model.DispatchReady(creds, settings) {
		entry.Status = model.ReplyFailure
		entry.ErrorDetails = detailNotValidated
		if creds != nil && creds.LastError != "" {
			entry.ErrorDetails += ": " + creds.LastError
		}
		return d.record(ctx, entry)
	}

	attempts, err := d.reply(ctx, creds.AccessToken, ev.CommentID, match.Reply)
	entry.Attempts = attempts
	if err == nil {
		entry.Status = model.ReplySuccess
		return d.record(ctx, entry)
	}

	entry.Status = model.ReplyFailure
	entry.ErrorDetails = err.Error()

	if errors.Is(err, apperror.ErrUnauthenticated) {
		if mErr := d.credentials.MarkInvalid(ctx, userID, err.Error()); mErr != nil {
			d.logger.Error("failed to invalidate credentials",
				slog.String("userId", userID),
				slog.String("error", mErr.Error()),
			)
		} else {
			d.logger.Warn("instagram token rejected, credentials invalidated", slog.String("userId", userID))
		}
	}

	return d.record(ctx, entry)
}

// reply calls the platform with bounded retries. Only failures the replier
// reports as retryable are retried, and the whole loop shares one deadline.
func (d *Dispatcher) reply(ctx context.Context, token, commentID, message string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		_, err := d.replier.ReplyToComment(ctx, token, commentID, message)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !d.replier.Retryable(err) || attempt == d.cfg.MaxAttempts {
			return attempt, err
		}

		d.logger.Debug("reply attempt failed, retrying",
			slog.String("commentId", commentID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		wait := time.NewTimer(d.cfg.backoff(attempt))
		select {
		case <-wait.C:
		case <-ctx.Done():
			wait.Stop()
			return attempt, fmt.Errorf("dispatch: gave up after %d attempts: %w", attempt, lastErr)
		}
	}

	return d.cfg.MaxAttempts, lastErr
}

// record appends entry. Losing the insert race to a concurrent delivery of
// the same comment is reported as OutcomeDuplicate, not an error.
func (d *Dispatcher) record(ctx context.Context, entry *model.ReplyLog) (Result, error) {
	err := d.logs.Append(ctx, entry)
	if errors.Is(err, apperror.ErrDuplicate) {
		return Result{Outcome: OutcomeDuplicate}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: recording comment %s: %w", entry.CommentID, err)
	}

	outcome := OutcomeFailed
	if entry.Succeeded() {
		outcome = OutcomeReplied
	}

	d.logger.Info("auto-reply recorded",
		slog.String("userId", entry.UserID),
		slog.String("commentId", entry.CommentID),
		slog.String("status", string(entry.Status)),
		slog.Int("attempts", entry.Attempts),
	)

	return Result{Outcome: outcome, Entry: entry}, nil
}

func commenter(ev model.CommentEvent) string {
	if ev.CommenterUsername != "" {
		return ev.CommenterUsername
	}
	return ev.CommenterID
}
