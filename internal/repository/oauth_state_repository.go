package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// OAuthStateRepository stores single-use anti-forgery tokens of pending connections.
type OAuthStateRepository interface {
	Create(ctx context.Context, st *models.OAuthState) error
	// Consume deletes and returns the matching unexpired state, or nil if there is none.
	Consume(ctx context.Context, userID int64, platform, state string) (*models.OAuthState, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type oauthStateRepository struct {
	db  *sql.DB
	ttl time.Duration
}

func NewOAuthStateRepository(db *sql.DB, ttl time.Duration) OAuthStateRepository {
	return &oauthStateRepository{db: db, ttl: ttl}
}

func (r *oauthStateRepository) Create(ctx context.Context, st *models.OAuthState) error {
	query := `
		INSERT INTO oauth_states (user_id, platform, state, code_verifier)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, st.UserID, st.Platform, st.State, st.CodeVerifier)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *oauthStateRepository) Consume(ctx context.Context, userID int64, platform, state string) (*models.OAuthState, error) {
	query := `
		DELETE FROM oauth_states
		WHERE user_id = $1 AND platform = $2 AND state = $3
		RETURNING code_verifier, created_at
	`

	st := models.OAuthState{UserID: userID, Platform: platform, State: state}
	err := r.db.QueryRowContext(ctx, query, userID, platform, state).Scan(&st.CodeVerifier, &st.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	if time.Since(st.CreatedAt) > r.ttl {
		slog.Info("oauth state expired", "platform", platform, "user_id", userID)
		return nil, nil
	}

	return &st, nil
}

func (r *oauthStateRepository) PurgeExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM oauth_states WHERE created_at < $1`
	result, err := r.db.ExecContext(ctx, query, time.Now().Add(-r.ttl))
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}
