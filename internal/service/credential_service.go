package service

import (
	"context"
	"fmt"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

// CredentialSource returns nil credentials when it has nothing for the platform.
type CredentialSource interface {
	Credentials(ctx context.Context, userID int64, platform, accountType string) (*models.Credentials, error)
}

// PerUserSource resolves the user's most recently used linked account.
type PerUserSource struct {
	accounts repository.SocialAccountRepository
	cipher   *utils.Cipher
}

func NewPerUserSource(accounts repository.SocialAccountRepository, cipher *utils.Cipher) *PerUserSource {
	return &PerUserSource{accounts: accounts, cipher: cipher}
}

func (s *PerUserSource) Credentials(ctx context.Context, userID int64, platform, accountType string) (*models.Credentials, error) {
	acc, err := s.accounts.GetLatest(ctx, userID, platform, accountType)
	if err != nil {
		return nil, fmt.Errorf("loading %s account: %w", platform, err)
	}
	if acc == nil {
		return nil, nil
	}

	accessToken, err := s.cipher.Decrypt(acc.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s token: %w", platform, err)
	}

	return &models.Credentials{
		AccountID:         acc.ID,
		PlatformAccountID: acc.PlatformAccountID,
		AccessToken:       accessToken,
	}, nil
}

// SharedServiceSource serves the single-tenant credentials of the app owner.
type SharedServiceSource struct {
	shared map[string]models.Credentials
}

func NewSharedServiceSource(cfg *config.Config) *SharedServiceSource {
	shared := make(map[string]models.Credentials)

	tw := cfg.TwitterShared
	if tw.ConsumerKey != "" && tw.ConsumerSecret != "" && tw.AccessToken != "" && tw.AccessTokenSecret != "" {
		shared["twitter"] = models.Credentials{
			AccessToken:       tw.AccessToken,
			AccessTokenSecret: tw.AccessTokenSecret,
			Shared:            true,
		}
	}

	li := cfg.LinkedinShared
	if li.AccessToken != "" && li.AuthorURN != "" {
		shared["linkedin"] = models.Credentials{
			AccessToken:       li.AccessToken,
			PlatformAccountID: li.AuthorURN,
			Shared:            true,
		}
	}

	return &SharedServiceSource{shared: shared}
}

func (s *SharedServiceSource) Credentials(ctx context.Context, userID int64, platform, accountType string) (*models.Credentials, error) {
	cred, ok := s.shared[platform]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

// CredentialResolver asks each source in order.
type CredentialResolver struct {
	sources []CredentialSource
}

func NewCredentialResolver(sources ...CredentialSource) *CredentialResolver {
	return &CredentialResolver{sources: sources}
}

func (r *CredentialResolver) Resolve(ctx context.Context, userID int64, platform, accountType string) (*models.Credentials, error) {
	for _, src := range r.sources {
		cred, err := src.Credentials(ctx, userID, platform, accountType)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			return cred, nil
		}
	}
	return nil, newError(ErrNoCredentialsAvailable, "No %s account found", platform)
}
