package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/auth"
	"github.com/sakif/comment-autoreply/internal/model"
	"github.com/sakif/comment-autoreply/internal/repository"
)

const testSealingKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// newTestDB opens a fresh in-memory database for one test.
// t.Cleanup closes it when the test (and its subtests) finish.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	sealer, err := auth.NewSealer(testSealingKey)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	db, err := New(":memory:", sealer)
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newMockConn returns a sqlmock connection for driver-failure paths that a
// real SQLite database cannot be made to produce on demand.
func newMockConn(t *testing.T) (sqlmock.Sqlmock, *DB) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	sealer, _ := auth.NewSealer(testSealingKey)
	t.Cleanup(func() {
		conn.Close()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
	})
	return mock, &DB{conn: conn, sealer: sealer}
}

func TestNew_RequiresSealer(t *testing.T) {
	if _, err := New(":memory:", nil); err == nil {
		t.Fatal("New() without a sealer should fail")
	}
}

func TestNew_MigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

// =========================================================================
// DRIVER FAILURE TESTS (sqlmock)
// =========================================================================

var errDiskIO = errors.New("disk I/O error")

func TestDriverFailures_AreWrapped(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		expect func(sqlmock.Sqlmock)
		call   func(*DB) error
	}{
		{
			name: "user upsert",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectExec("INSERT INTO users").WillReturnError(errDiskIO)
			},
			call: func(db *DB) error {
				return db.Users().Upsert(ctx, &model.User{ID: "u1", Name: "Ana"})
			},
		},
		{
			name: "settings lookup",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("SELECT (.+) FROM automation_settings").WillReturnError(errDiskIO)
			},
			call: func(db *DB) error {
				_, err := db.Settings().GetByUserID(ctx, "u1")
				return err
			},
		},
		{
			name: "credential lookup by IG user id",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("SELECT (.+) FROM instagram_credentials").WillReturnError(errDiskIO)
			},
			call: func(db *DB) error {
				_, err := db.Credentials().GetByIGUserID(ctx, "1784")
				return err
			},
		},
		{
			name: "reply log existence check",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("SELECT EXISTS").WillReturnError(errDiskIO)
			},
			call: func(db *DB) error {
				_, err := db.ReplyLogs().ExistsForComment(ctx, "c1")
				return err
			},
		},
		{
			name: "reply log listing",
			expect: func(m sqlmock.Sqlmock) {
				m.ExpectQuery("SELECT (.+) FROM reply_logs").WillReturnError(errDiskIO)
			},
			call: func(db *DB) error {
				_, err := db.ReplyLogs().ListByUser(ctx, "u1", repository.LogFilter{})
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, db := newMockConn(t)
			tt.expect(mock)

			err := tt.call(db)
			if !errors.Is(err, errDiskIO) {
				t.Fatalf("error = %v, want wrapped %v", err, errDiskIO)
			}
			if errors.Is(err, apperror.ErrNotFound) {
				t.Error("driver failure must not be reported as not found")
			}
		})
	}
}

func TestReplyLogAppend_NoRowsAffectedIsDuplicate(t *testing.T) {
	mock, db := newMockConn(t)
	mock.ExpectExec("INSERT INTO reply_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.ReplyLogs().Append(context.Background(), &model.ReplyLog{
		UserID:    "u1",
		CommentID: "c1",
		Status:    model.ReplySuccess,
	})
	if !errors.Is(err, apperror.ErrDuplicate) {
		t.Fatalf("Append() error = %v, want ErrDuplicate", err)
	}
}
