package apperror

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("settings", "u1"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("keyword", "keyword is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("instagram account", "1784"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "Unauthenticated wraps ErrUnauthenticated",
			err:       Unauthenticated("signature mismatch", nil),
			target:    ErrUnauthenticated,
			wantMatch: true,
		},
		{
			name:      "Transient wraps ErrTransient",
			err:       Transient("graph unavailable", io.ErrUnexpectedEOF),
			target:    ErrTransient,
			wantMatch: true,
		},
		{
			name:      "Transient exposes its cause",
			err:       Transient("graph unavailable", io.ErrUnexpectedEOF),
			target:    io.ErrUnexpectedEOF,
			wantMatch: true,
		},
		{
			name:      "Duplicate wraps ErrDuplicate through fmt wrapping",
			err:       fmt.Errorf("appending log: %w", Duplicate("c1")),
			target:    ErrDuplicate,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("settings", "u1"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "Unauthenticated does NOT match ErrTransient",
			err:       Unauthenticated("token expired", nil),
			target:    ErrTransient,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("settings", "u1"),
			wantMessage: "settings not found with id u1",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("keyword", "keyword is required"),
			wantMessage: "keyword is required",
		},
		{
			name:        "Conflict message includes resource and id",
			err:         Conflict("instagram account", "1784"),
			wantMessage: "instagram account conflict with id 1784",
		},
		{
			name:        "Duplicate names the comment",
			err:         Duplicate("c1"),
			wantMessage: "comment c1 already processed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", ValidationFailed("message", "auto-reply message is required"))

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As did not find *AppError")
	}
	if appErr.Field != "message" {
		t.Errorf("Field = %q, want %q", appErr.Field, "message")
	}
}
