package model

import (
	"encoding/json"
	"time"
)

// ReplyStatus is the terminal outcome recorded for one comment.
type ReplyStatus string

const (
	ReplySuccess ReplyStatus = "success"
	ReplyFailure ReplyStatus = "failure"
)

// ReplyLog is an append-only record of one evaluated comment that matched a
// rule. CommentID is unique across the table; it is the idempotency key for
// at-least-once webhook delivery.
//
// On the wire "status" is the dashboard's boolean (true = replied) and
// "outcome" carries the ReplyStatus string.
type ReplyLog struct {
	ReplyID        string      `json:"replyId"`
	UserID         string      `json:"-"`
	CommentID      string      `json:"commentId"`
	MediaID        string      `json:"mediaId,omitempty"`
	Commenter      string      `json:"commenter,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	CommentedAt    *time.Time  `json:"commentedAt,omitempty"`
	CommentSnippet string      `json:"commentSnippet"`
	KeywordMatched string      `json:"keywordMatched"`
	Status         ReplyStatus `json:"outcome"`
	ErrorDetails   string      `json:"errorDetails,omitempty"`
	Attempts       int         `json:"attempts"`
}

// Succeeded mirrors the dashboard's boolean status column.
func (l *ReplyLog) Succeeded() bool { return l.Status == ReplySuccess }

func (l ReplyLog) MarshalJSON() ([]byte, error) {
	type plain ReplyLog
	return json.Marshal(struct {
		plain
		Succeeded bool `json:"status"`
	}{plain(l), l.Succeeded()})
}

// CommentEvent is one comment notification extracted from a webhook payload.
type CommentEvent struct {
	AccountID         string // IG user id the webhook entry belongs to
	MediaID           string
	CommentID         string
	CommenterID       string
	CommenterUsername string
	Text              string
	Timestamp         time.Time
}
