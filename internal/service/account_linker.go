package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"go.uber.org/multierr"
)

type AccountLinker struct {
	accounts repository.SocialAccountRepository
	cipher   *utils.Cipher
}

func NewAccountLinker(accounts repository.SocialAccountRepository, cipher *utils.Cipher) *AccountLinker {
	return &AccountLinker{accounts: accounts, cipher: cipher}
}

// Link upserts every profile. The first profile is the primary account and
// must be stored; failures on the others are logged and tolerated.
func (l *AccountLinker) Link(ctx context.Context, userID int64, platform string, tok *TokenSet, profiles []Profile) (*models.SocialAccount, error) {
	if len(profiles) == 0 {
		return nil, newError(ErrProfileFetchFailed, "%s returned no profile", platform)
	}

	primary, err := l.link(ctx, userID, platform, tok, profiles[0])
	if err != nil {
		return nil, err
	}

	var errs error
	for _, p := range profiles[1:] {
		if _, err := l.link(ctx, userID, platform, tok, p); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", p.AccountType, p.PlatformAccountID, err))
		}
	}
	if errs != nil {
		slog.Error("some accounts were not linked", "platform", platform, "user_id", userID,
			"failed", len(multierr.Errors(errs)), "error", errs)
	}

	return primary, nil
}

func (l *AccountLinker) link(ctx context.Context, userID int64, platform string, tok *TokenSet, p Profile) (*models.SocialAccount, error) {
	acc := &models.SocialAccount{
		UserID:            userID,
		Platform:          platform,
		PlatformAccountID: p.PlatformAccountID,
		AccountName:       p.AccountName,
		AccountType:       p.AccountType,
	}
	if acc.AccountType == "" {
		acc.AccountType = models.AccountTypeProfile
	}

	accessToken, refreshToken := p.AccessToken, ""
	if accessToken == "" {
		accessToken, refreshToken = tok.AccessToken, tok.RefreshToken
		acc.TokenExpiresAt = tok.ExpiresAt
	}

	var err error
	if acc.AccessToken, err = l.cipher.Encrypt(accessToken); err != nil {
		return nil, err
	}
	if acc.RefreshToken, err = l.cipher.Encrypt(refreshToken); err != nil {
		return nil, err
	}

	if len(p.Metadata) > 0 {
		if acc.Metadata, err = json.Marshal(p.Metadata); err != nil {
			return nil, err
		}
	}

	id, err := l.accounts.Upsert(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("storing %s account: %w", platform, err)
	}
	acc.ID = id

	return acc, nil
}
