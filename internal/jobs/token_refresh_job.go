package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

const refreshWindow = 30 * time.Minute

type TokenRefreshJob struct {
	sr       repository.SocialAccountRepository
	registry *service.Registry
	cipher   *utils.Cipher
}

func NewTokenRefreshJob(sr repository.SocialAccountRepository, registry *service.Registry, cipher *utils.Cipher) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:       sr,
		registry: registry,
		cipher:   cipher,
	}
}

// RefreshTokens renews tokens expiring within the next 30 minutes for
// platforms that support refresh.
func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	accounts, err := c.sr.ListExpiring(ctx, time.Now().Add(refreshWindow))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		provider, ok := c.registry.Provider(acc.Platform)
		if !ok {
			continue
		}
		refresher, ok := provider.(service.Refresher)
		if !ok {
			continue
		}

		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.refresh(ctx, refresher, acc); err != nil {
				slog.Error("unable to refresh tokens", "platform", acc.Platform, "account_id", acc.ID, "error", err)
			}
		}(acc)
	}

	wg.Wait()
}

func (c *TokenRefreshJob) refresh(ctx context.Context, refresher service.Refresher, acc *models.SocialAccount) error {
	refreshToken, err := c.cipher.Decrypt(acc.RefreshToken)
	if err != nil {
		return err
	}

	tok, err := refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return err
	}

	update := models.SocialAccount{TokenExpiresAt: tok.ExpiresAt}
	if update.AccessToken, err = c.cipher.Encrypt(tok.AccessToken); err != nil {
		return err
	}
	if tok.RefreshToken != "" {
		if update.RefreshToken, err = c.cipher.Encrypt(tok.RefreshToken); err != nil {
			return err
		}
	}

	return c.sr.SetToken(ctx, acc.ID, &update)
}
