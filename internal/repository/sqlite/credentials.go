package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/comment-autoreply/internal/apperror"
	"github.com/sakif/comment-autoreply/internal/auth"
	"github.com/sakif/comment-autoreply/internal/model"
	"github.com/sakif/comment-autoreply/internal/repository"
)

// CredentialDB stores one Instagram binding per user. Access tokens are
// sealed on write and opened on read; the plaintext never reaches disk.
type CredentialDB struct {
	conn   *sql.DB
	sealer *auth.Sealer
}

var _ repository.CredentialRepository = (*CredentialDB)(nil)

const credentialColumns = `user_id, ig_user_id, page_id, access_token, username, state,
	last_validated_at, last_error, updated_at`

// Upsert replaces the user's binding in a single statement (last writer wins).
// Binding an IG account that already belongs to another user returns a Conflict.
func (c *CredentialDB) Upsert(ctx context.Context, creds *model.Credentials) error {
	sealed, err := c.sealer.Seal(creds.AccessToken)
	if err != nil {
		return fmt.Errorf("sqlite: sealing access token for user %s: %w", creds.UserID, err)
	}

	creds.UpdatedAt = time.Now().UTC()

	var validatedAt sql.NullTime
	if creds.LastValidatedAt != nil {
		validatedAt = sql.NullTime{Time: creds.LastValidatedAt.UTC(), Valid: true}
	}

	_, err = c.conn.ExecContext(ctx,
		`INSERT INTO instagram_credentials (`+credentialColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			ig_user_id        = excluded.ig_user_id,
			page_id           = excluded.page_id,
			access_token      = excluded.access_token,
			username          = excluded.username,
			state             = excluded.state,
			last_validated_at = excluded.last_validated_at,
			last_error        = excluded.last_error,
			updated_at        = excluded.updated_at`,
		creds.UserID,
		creds.IGUserID,
		creds.PageID,
		sealed,
		creds.Username,
		string(creds.State),
		validatedAt,
		creds.LastError,
		creds.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("instagram account", creds.IGUserID)
		}
		return fmt.Errorf("sqlite: upserting credentials for user %s: %w", creds.UserID, err)
	}

	return nil
}

func (c *CredentialDB) GetByUserID(ctx context.Context, userID string) (*model.Credentials, error) {
	row := c.conn.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM instagram_credentials WHERE user_id = ?`, userID)
	return c.scan(row, "user", userID)
}

// GetByIGUserID resolves a webhook entry's account id to its owner's binding.
func (c *CredentialDB) GetByIGUserID(ctx context.Context, igUserID string) (*model.Credentials, error) {
	row := c.conn.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM instagram_credentials WHERE ig_user_id = ?`, igUserID)
	return c.scan(row, "instagram account", igUserID)
}

// MarkInvalid moves a validated binding to CredentialInvalid. Bindings in any
// other state are left alone; a missing binding is NotFound.
func (c *CredentialDB) MarkInvalid(ctx context.Context, userID, reason string) error {
	result, err := c.conn.ExecContext(ctx,
		`UPDATE instagram_credentials
		 SET state = ?, last_error = ?, updated_at = ?
		 WHERE user_id = ? AND state = ?`,
		string(model.CredentialInvalid),
		reason,
		time.Now().UTC(),
		userID,
		string(model.CredentialValidated),
	)
	if err != nil {
		return fmt.Errorf("sqlite: invalidating credentials for user %s: %w", userID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		if _, err := c.GetByUserID(ctx, userID); err != nil {
			return err
		}
	}

	return nil
}

func (c *CredentialDB) scan(row *sql.Row, resource, id string) (*model.Credentials, error) {
	var (
		creds       model.Credentials
		sealed      string
		state       string
		validatedAt sql.NullTime
	)

	err := row.Scan(
		&creds.UserID,
		&creds.IGUserID,
		&creds.PageID,
		&sealed,
		&creds.Username,
		&state,
		&validatedAt,
		&creds.LastError,
		&creds.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("credentials for "+resource, id)
		}
		return nil, fmt.Errorf("sqlite: getting credentials for %s %s: %w", resource, id, err)
	}

	token, err := c.sealer.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening access token for user %s: %w", creds.UserID, err)
	}
	creds.AccessToken = token
	creds.State = model.CredentialState(state)
	if validatedAt.Valid {
		t := validatedAt.Time
		creds.LastValidatedAt = &t
	}

	return &creds, nil
}
