package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/model"
	"github.com/sakif/comment-autoreply/internal/repository"
)

var logEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func appendTestLog(t *testing.T, r *ReplyLogDB, userID, commentID string, status model.ReplyStatus, at time.Time) *model.ReplyLog {
	t.Helper()
	entry := &model.ReplyLog{
		UserID:         userID,
		CommentID:      commentID,
		MediaID:        "m1",
		Commenter:      "fan_01",
		Timestamp:      at,
		CommentSnippet: "send me the link",
		KeywordMatched: "link",
		Status:         status,
		Attempts:       1,
	}
	if err := r.Append(context.Background(), entry); err != nil {
		t.Fatalf("failed to append test log: %v", err)
	}
	return entry
}

func TestReplyLogAppend_AssignsID(t *testing.T) {
	logs := newTestDB(t).ReplyLogs()

	entry := appendTestLog(t, logs, "u1", "c1", model.ReplySuccess, logEpoch)
	if entry.ReplyID == "" {
		t.Error("Append() did not set ReplyID")
	}

	exists, err := logs.ExistsForComment(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ExistsForComment() error = %v", err)
	}
	if !exists {
		t.Error("ExistsForComment(c1) = false after Append")
	}

	exists, _ = logs.ExistsForComment(context.Background(), "c2")
	if exists {
		t.Error("ExistsForComment(c2) = true for an unseen comment")
	}
}

func TestReplyLogAppend_SameCommentWritesOnce(t *testing.T) {
	logs := newTestDB(t).ReplyLogs()
	ctx := context.Background()

	appendTestLog(t, logs, "u1", "c1", model.ReplySuccess, logEpoch)

	err := logs.Append(ctx, &model.ReplyLog{
		UserID:    "u1",
		CommentID: "c1",
		Status:    model.ReplyFailure,
	})
	if !errors.Is(err, apperror.ErrDuplicate) {
		t.Fatalf("second Append() error = %v, want ErrDuplicate", err)
	}

	got, err := logs.ListByUser(ctx, "u1", repository.LogFilter{})
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListByUser() returned %d entries, want 1", len(got))
	}
	if got[0].Status != model.ReplySuccess {
		t.Errorf("Status = %q, the first write must win", got[0].Status)
	}
}

func TestReplyLogAppend_ConcurrentSameComment(t *testing.T) {
	logs := newTestDB(t).ReplyLogs()
	ctx := context.Background()

	const writers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		written int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := logs.Append(ctx, &model.ReplyLog{UserID: "u1", CommentID: "c-race", Status: model.ReplySuccess})
			if err == nil {
				mu.Lock()
				written++
				mu.Unlock()
			} else if !errors.Is(err, apperror.ErrDuplicate) {
				t.Errorf("Append() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if written != 1 {
		t.Errorf("%d writers succeeded, want exactly 1", written)
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestReplyLogList_NewestFirstAndScopedToUser(t *testing.T) {
	logs := newTestDB(t).ReplyLogs()

	for i := 0; i < 3; i++ {
		appendTestLog(t, logs, "u1", fmt.Sprintf("c%d", i), model.ReplySuccess, logEpoch.Add(time.Duration(i)*time.Minute))
	}
	appendTestLog(t, logs, "u2", "other", model.ReplySuccess, logEpoch)

	got, err := logs.ListByUser(context.Background(), "u1", repository.LogFilter{})
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}

	want := []string{"c2", "c1", "c0"}
	if len(got) != len(want) {
		t.Fatalf("ListByUser() returned %d entries, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].CommentID != id {
			t.Errorf("entry %d CommentID = %q, want %q", i, got[i].CommentID, id)
		}
		if got[i].UserID != "u1" {
			t.Errorf("entry %d belongs to %q", i, got[i].UserID)
		}
	}
}

func TestReplyLogList_StatusFilterAndPaging(t *testing.T) {
	logs := newTestDB(t).ReplyLogs()
	ctx := context.Background()

	appendTestLog(t, logs, "u1", "ok-1", model.ReplySuccess, logEpoch)
	appendTestLog(t, logs, "u1", "bad-1", model.ReplyFailure, logEpoch.Add(time.Minute))
	appendTestLog(t, logs, "u1", "ok-2", model.ReplySuccess, logEpoch.Add(2*time.Minute))

	tests := []struct {
		name   string
		filter repository.LogFilter
		want   []string
	}{
		{"all", repository.LogFilter{}, []string{"ok-2", "bad-1", "ok-1"}},
		{"success only", repository.LogFilter{Status: model.ReplySuccess}, []string{"ok-2", "ok-1"}},
		{"failure only", repository.LogFilter{Status: model.ReplyFailure}, []string{"bad-1"}},
		{"limit", repository.LogFilter{ListOptions: repository.ListOptions{Limit: 2}}, []string{"ok-2", "bad-1"}},
		{"offset", repository.LogFilter{ListOptions: repository.ListOptions{Limit: 2, Offset: 2}}, []string{"ok-1"}},
		{"past the end", repository.LogFilter{ListOptions: repository.ListOptions{Limit: 2, Offset: 10}}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := logs.ListByUser(ctx, "u1", tt.filter)
			if err != nil {
				t.Fatalf("ListByUser() error = %v", err)
			}
			if got == nil {
				t.Fatal("ListByUser() returned nil, want an empty slice")
			}
			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.CommentID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.want) {
				t.Errorf("comment ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestReplyLogAppend_CommentTimeRoundTrip(t *testing.T) {
	logs := newTestDB(t).ReplyLogs()
	ctx := context.Background()

	commented := logEpoch.Add(-time.Minute)
	with := &model.ReplyLog{UserID: "u1", CommentID: "c1", Timestamp: logEpoch, CommentedAt: &commented, Status: model.ReplySuccess}
	without := &model.ReplyLog{UserID: "u1", CommentID: "c2", Timestamp: logEpoch.Add(time.Second), Status: model.ReplyFailure}
	if err := logs.Append(ctx, with); err != nil {
		t.Fatalf("Append(c1) error = %v", err)
	}
	if err := logs.Append(ctx, without); err != nil {
		t.Fatalf("Append(c2) error = %v", err)
	}

	got, err := logs.ListByUser(ctx, "u1", repository.LogFilter{})
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListByUser() returned %d entries, want 2", len(got))
	}
	if got[0].CommentedAt != nil {
		t.Errorf("c2 CommentedAt = %v, want nil", got[0].CommentedAt)
	}
	if got[1].CommentedAt == nil || !got[1].CommentedAt.Equal(commented) {
		t.Errorf("c1 CommentedAt = %v, want %v", got[1].CommentedAt, commented)
	}
}
