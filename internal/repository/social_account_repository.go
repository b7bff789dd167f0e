package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

type SocialAccountRepository interface {
	Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.SocialAccount, error)
	GetLatest(ctx context.Context, userID int64, platform, preferredType string) (*models.SocialAccount, error)
	ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error)
	CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error)
	SetToken(ctx context.Context, id int64, sa *models.SocialAccount) error
	TouchLastUsed(ctx context.Context, id int64, at time.Time) error
	Remove(ctx context.Context, id int64) error
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const socialAccountColumns = `id, user_id, platform, platform_account_id, account_name, account_type,
	access_token, refresh_token, token_expires_at, last_used_at, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSocialAccount(row rowScanner) (*models.SocialAccount, error) {
	var sa models.SocialAccount
	var metadata []byte
	err := row.Scan(&sa.ID, &sa.UserID, &sa.Platform, &sa.PlatformAccountID, &sa.AccountName,
		&sa.AccountType, &sa.AccessToken, &sa.RefreshToken, &sa.TokenExpiresAt, &sa.LastUsedAt,
		&metadata, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sa.Metadata = metadata
	return &sa, nil
}

// Upsert inserts the account or overwrites tokens and metadata of the existing
// row with the same (user_id, platform, platform_account_id).
func (r *socialAccountRepository) Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	query := `
		INSERT INTO social_accounts(
			user_id,
			platform,
			platform_account_id,
			account_name,
			account_type,
			access_token,
			refresh_token,
			token_expires_at,
			metadata,
			last_used_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, platform, platform_account_id) DO UPDATE SET
			account_name = EXCLUDED.account_name,
			account_type = EXCLUDED.account_type,
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), social_accounts.refresh_token),
			token_expires_at = EXCLUDED.token_expires_at,
			metadata = EXCLUDED.metadata,
			last_used_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	metadata := "{}"
	if len(sa.Metadata) > 0 {
		metadata = string(sa.Metadata)
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		sa.UserID,
		sa.Platform,
		sa.PlatformAccountID,
		sa.AccountName,
		sa.AccountType,
		sa.AccessToken,
		sa.RefreshToken,
		sa.TokenExpiresAt,
		metadata,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *socialAccountRepository) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE id = $1`

	sa, err := scanSocialAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return sa, nil
}

// GetLatest returns the most recently used account of the user on the platform.
// Rows whose account_type equals preferredType win over more recently used rows.
func (r *socialAccountRepository) GetLatest(ctx context.Context, userID int64, platform, preferredType string) (*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts
		WHERE user_id = $1 AND platform = $2
		ORDER BY (account_type = $3) DESC, last_used_at DESC, id DESC
		LIMIT 1`

	sa, err := scanSocialAccount(r.db.QueryRowContext(ctx, query, userID, platform, preferredType))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return sa, nil
}

func (r *socialAccountRepository) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	query := `SELECT id, platform, platform_account_id, account_name, account_type, last_used_at
		FROM social_accounts WHERE user_id = $1 ORDER BY platform, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var socialAccounts []*models.SocialAccount
	for rows.Next() {
		sa := models.SocialAccount{UserID: userID}
		err := rows.Scan(&sa.ID, &sa.Platform, &sa.PlatformAccountID, &sa.AccountName, &sa.AccountType, &sa.LastUsedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		socialAccounts = append(socialAccounts, &sa)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return socialAccounts, nil
}

// ListExpiring returns accounts holding a refresh token whose access token
// expires before the given time, including already expired ones.
func (r *socialAccountRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts
		WHERE token_expires_at IS NOT NULL
		AND token_expires_at < $1
		AND refresh_token <> ''`
	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var socialAccounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanSocialAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		socialAccounts = append(socialAccounts, sa)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return socialAccounts, nil
}

func (r *socialAccountRepository) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	query := "SELECT 1 FROM social_accounts WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, accountID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// SetToken stores refreshed credentials. Empty fields keep their current value.
func (r *socialAccountRepository) SetToken(ctx context.Context, id int64, sa *models.SocialAccount) error {
	query := `
		UPDATE social_accounts
		SET
			access_token = COALESCE(NULLIF($2, ''), access_token),
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expires_at = COALESCE($4, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, sa.AccessToken, sa.RefreshToken, sa.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		err = errors.New("no rows affected; social account may not exist")
		slog.Info(err.Error())
		return err
	}

	return nil
}

// TouchLastUsed moves last_used_at forward. Concurrent publishes never move it back.
func (r *socialAccountRepository) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE social_accounts SET last_used_at = GREATEST(last_used_at, $2) WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *socialAccountRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM social_accounts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
