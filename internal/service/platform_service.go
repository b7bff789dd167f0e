package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/utils"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/oauth2"
)

const stateTokenLength = 32

type PlatformService interface {
	BeginConnection(ctx context.Context, userID int64, platform string) (string, error)
	CompleteConnection(ctx context.Context, userID int64, platform, code, state string) (*models.SocialAccount, error)
	List(ctx context.Context, userID int64) ([]*models.SocialAccount, error)
	Delete(ctx context.Context, userID, accountID int64) error
}

type platformService struct {
	cfg      *config.Config
	registry *Registry
	states   repository.OAuthStateRepository
	sa       repository.SocialAccountRepository
	linker   *AccountLinker
	cipher   *utils.Cipher
}

func NewPlatformService(
	cfg *config.Config,
	registry *Registry,
	states repository.OAuthStateRepository,
	sa repository.SocialAccountRepository,
	cipher *utils.Cipher) PlatformService {
	return &platformService{
		cfg:      cfg,
		registry: registry,
		states:   states,
		sa:       sa,
		linker:   NewAccountLinker(sa, cipher),
		cipher:   cipher,
	}
}

func (s *platformService) provider(platform string) (Provider, error) {
	p, ok := s.registry.Provider(platform)
	if !ok {
		return nil, newError(ErrUnsupportedPlatform, "unsupported platform: %s", platform)
	}
	if !s.cfg.App(platform).Complete() {
		return nil, newError(ErrConfiguration, "%s app credentials are not configured", platform)
	}
	return p, nil
}

// BeginConnection stores a fresh state for the user and returns the
// platform's authorization URL. It makes no network call to the platform.
func (s *platformService) BeginConnection(ctx context.Context, userID int64, platform string) (string, error) {
	if userID == 0 {
		return "", newError(ErrInvalidRequest, "UserID is not valid")
	}

	p, err := s.provider(platform)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	state, err := gonanoid.New(stateTokenLength)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	var verifier string
	if p.PKCE() {
		verifier = oauth2.GenerateVerifier()
	}

	err = s.states.Create(ctx, &models.OAuthState{
		UserID:       userID,
		Platform:     platform,
		State:        state,
		CodeVerifier: verifier,
	})
	if err != nil {
		return "", fmt.Errorf("saving oauth state: %w", err)
	}

	return p.AuthCodeURL(state, verifier), nil
}

// CompleteConnection consumes the state, exchanges the code and links every
// profile the token grants access to.
func (s *platformService) CompleteConnection(ctx context.Context, userID int64, platform, code, state string) (*models.SocialAccount, error) {
	if userID == 0 {
		return nil, newError(ErrInvalidRequest, "UserID is not valid")
	}
	if code == "" {
		return nil, newError(ErrInvalidRequest, "code is empty")
	}
	if state == "" {
		return nil, newError(ErrInvalidState, "state is empty")
	}

	p, err := s.provider(platform)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	st, err := s.states.Consume(ctx, userID, platform, state)
	if err != nil {
		return nil, fmt.Errorf("consuming oauth state: %w", err)
	}
	if st == nil {
		err = newError(ErrInvalidState, "state is invalid, expired or already used")
		slog.Info(err.Error(), "platform", platform, "user_id", userID)
		return nil, err
	}

	tok, err := p.Exchange(ctx, code, st.CodeVerifier)
	if err != nil {
		slog.Error("token exchange failed", "platform", platform, "error", err)
		return nil, err
	}

	profiles, err := p.FetchProfiles(ctx, tok)
	if err != nil {
		slog.Error("profile fetch failed", "platform", platform, "error", err)
		return nil, err
	}

	return s.linker.Link(ctx, userID, platform, tok, profiles)
}

func (s *platformService) List(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	var err error

	if userID == 0 {
		err = errors.New("UserID is not valid")
		slog.Info(err.Error())
		return nil, &Error{Kind: ErrInvalidRequest, Err: err}
	}

	accounts, err := s.sa.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Error getting social accounts: %w", err)
	}

	return accounts, nil
}

// Delete removes the account row. Upstream revocation is best effort.
func (s *platformService) Delete(ctx context.Context, userID, accountID int64) error {
	if userID == 0 {
		return newError(ErrInvalidRequest, "UserID is not valid")
	}
	if accountID == 0 {
		return newError(ErrInvalidRequest, "AccountID is not valid")
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		err = newError(ErrInvalidRequest, "Social account doesn't exist")
		slog.Info(err.Error())
		return err
	}

	accountInfo, err := s.sa.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("Unable to get social account info: %w", err)
	}
	if accountInfo == nil {
		return newError(ErrInvalidRequest, "Social account doesn't exist")
	}

	if p, ok := s.registry.Provider(accountInfo.Platform); ok {
		if revoker, ok := p.(Revoker); ok {
			s.revoke(ctx, revoker, accountInfo)
		}
	}

	if err := s.sa.Remove(ctx, accountID); err != nil {
		return fmt.Errorf("Error removing account Info: %w", err)
	}

	return nil
}

func (s *platformService) revoke(ctx context.Context, revoker Revoker, acc *models.SocialAccount) {
	accessToken, err := s.cipher.Decrypt(acc.AccessToken)
	if err != nil {
		slog.Error("unable to decrypt token for revocation", "platform", acc.Platform, "error", err)
		return
	}
	if err := revoker.Revoke(ctx, acc, accessToken); err != nil {
		slog.Error("unable to revoke access", "platform", acc.Platform, "account_id", acc.ID, "error", err)
	}
}
