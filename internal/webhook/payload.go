package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/comment-autoreply/internal/model"
)

// Payload is the envelope Meta posts for Instagram subscriptions.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes for one Instagram account. ID is the IG user id.
type Entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string       `json:"field"`
	Value CommentValue `json:"value"`
}

// CommentValue is the "comments" field's value object.
type CommentValue struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	From struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"from"`
	Media struct {
		ID string `json:"id"`
	} `json:"media"`
}

// Extraction is the result of decoding one delivery.
type Extraction struct {
	Events []model.CommentEvent
	// Skipped counts comment changes dropped for a missing id or text.
	Skipped int
}

// Parse decodes body and extracts every comment event in it. Objects other
// than "instagram" and fields other than "comments" are ignored. A body that
// is not valid JSON is an error.
func Parse(body []byte) (Extraction, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Extraction{}, fmt.Errorf("webhook: decoding payload: %w", err)
	}
	return Extract(payload), nil
}

func Extract(payload Payload) Extraction {
	var out Extraction
	if payload.Object != "instagram" {
		return out
	}

	for _, entry := range payload.Entry {
		at := time.Now().UTC()
		if entry.Time > 0 {
			at = unixTime(entry.Time)
		}

		for _, change := range entry.Changes {
			if strings.TrimSpace(change.Field) != "comments" {
				continue
			}

			v := change.Value
			commentID := strings.TrimSpace(v.ID)
			if commentID == "" || strings.TrimSpace(v.Text) == "" {
				out.Skipped++
				continue
			}

			out.Events = append(out.Events, model.CommentEvent{
				AccountID:         strings.TrimSpace(entry.ID),
				MediaID:           strings.TrimSpace(v.Media.ID),
				CommentID:         commentID,
				CommenterID:       strings.TrimSpace(v.From.ID),
				CommenterUsername: strings.TrimSpace(v.From.Username),
				Text:              v.Text,
				Timestamp:         at,
			})
		}
	}

	return out
}

// unixTime accepts both second and millisecond epochs; Meta has sent both.
func unixTime(v int64) time.Time {
	if v > 1e12 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}
