package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/model"
	"github.com/sakif/comment-autoreply/internal/repository"
)

// ReplyLogDB is the append-only reply log. Rows are never updated or deleted.
type ReplyLogDB struct {
	conn *sql.DB
}

var _ repository.ReplyLogRepository = (*ReplyLogDB)(nil)

// Append writes entry with a conditional insert keyed on comment_id. When a
// row for the comment already exists nothing is written and the returned
// error matches apperror.ErrDuplicate.
func (r *ReplyLogDB) Append(ctx context.Context, entry *model.ReplyLog) error {
	if entry.ReplyID == "" {
		entry.ReplyID = xid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	var commentedAt any
	if entry.CommentedAt != nil {
		commentedAt = entry.CommentedAt.UTC()
	}

	result, err := r.conn.ExecContext(ctx,
		`INSERT INTO reply_logs (
			reply_id, user_id, comment_id, media_id, commenter, created_at, commented_at,
			comment_snippet, keyword_matched, status, error_details, attempts
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(comment_id) DO NOTHING`,
		entry.ReplyID,
		entry.UserID,
		entry.CommentID,
		entry.MediaID,
		entry.Commenter,
		entry.Timestamp,
		commentedAt,
		entry.CommentSnippet,
		entry.KeywordMatched,
		string(entry.Status),
		entry.ErrorDetails,
		entry.Attempts,
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending reply log for comment %s: %w", entry.CommentID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.Duplicate(entry.CommentID)
	}

	return nil
}

func (r *ReplyLogDB) ExistsForComment(ctx context.Context, commentID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM reply_logs WHERE comment_id = ?)`, commentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking reply log for comment %s: %w", commentID, err)
	}
	return exists, nil
}

// ListByUser returns the user's entries newest first. A zero Limit means no limit.
func (r *ReplyLogDB) ListByUser(ctx context.Context, userID string, filter repository.LogFilter) ([]model.ReplyLog, error) {
	query := `SELECT reply_id, user_id, comment_id, media_id, commenter, created_at, commented_at,
		comment_snippet, keyword_matched, status, error_details, attempts
		FROM reply_logs WHERE user_id = ?`
	args := []any{userID}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}

	query += ` ORDER BY created_at DESC, reply_id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing reply logs for user %s: %w", userID, err)
	}
	defer rows.Close()

	// Non-nil so an empty result encodes as [] rather than null.
	logs := []model.ReplyLog{}
	for rows.Next() {
		var (
			entry       model.ReplyLog
			status      string
			commentedAt sql.NullTime
		)
		if err := rows.Scan(
			&entry.ReplyID,
			&entry.UserID,
			&entry.CommentID,
			&entry.MediaID,
			&entry.Commenter,
			&entry.Timestamp,
			&commentedAt,
			&entry.CommentSnippet,
			&entry.KeywordMatched,
			&status,
			&entry.ErrorDetails,
			&entry.Attempts,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning reply log row: %w", err)
		}
		entry.Status = model.ReplyStatus(status)
		if commentedAt.Valid {
			at := commentedAt.Time.UTC()
			entry.CommentedAt = &at
		}
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating reply log rows: %w", err)
	}

	return logs, nil
}
