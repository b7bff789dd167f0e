package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"golang.org/x/sync/errgroup"
)

type PublishService interface {
	Validate(req *models.PublishRequest) error
	Publish(ctx context.Context, req *models.PublishRequest) (*models.PublishOutcome, error)
}

type publishService struct {
	registry    *Registry
	creds       *CredentialResolver
	media       *MediaService
	sa          repository.SocialAccountRepository
	events      EventSink
	concurrency int
}

func NewPublishService(
	registry *Registry,
	creds *CredentialResolver,
	media *MediaService,
	sa repository.SocialAccountRepository,
	events EventSink,
	concurrency int) PublishService {
	if events == nil {
		events = NewNoopEventSink()
	}
	if concurrency <= 0 {
		concurrency = 10
	}
	return &publishService{
		registry:    registry,
		creds:       creds,
		media:       media,
		sa:          sa,
		events:      events,
		concurrency: concurrency,
	}
}

// Validate checks the request shape without touching the network.
func (s *publishService) Validate(req *models.PublishRequest) error {
	if req.UserID == 0 {
		return newError(ErrInvalidRequest, "UserID is not valid")
	}
	if strings.TrimSpace(req.Content) == "" && req.MediaCount() == 0 {
		return newError(ErrInvalidRequest, "content or media is required")
	}
	if len(req.Platforms) == 0 {
		return newError(ErrInvalidRequest, "at least one platform is required")
	}

	seen := make(map[string]bool, len(req.Platforms))
	for _, p := range req.Platforms {
		if p == "" {
			return newError(ErrInvalidRequest, "platform name is empty")
		}
		if seen[p] {
			return newError(ErrInvalidRequest, "platform %s is listed more than once", p)
		}
		seen[p] = true
	}

	_, err := s.media.Prepare(req)
	return err
}

// Publish runs every requested platform in its own failure boundary and
// returns one result per platform in request order.
func (s *publishService) Publish(ctx context.Context, req *models.PublishRequest) (*models.PublishOutcome, error) {
	if err := s.Validate(req); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	items, err := s.media.Prepare(req)
	if err != nil {
		return nil, err
	}

	results := make([]*models.PublishResult, len(req.Platforms))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, platform := range req.Platforms {
		g.Go(func() error {
			results[i] = s.publishOne(ctx, req, platform, items)
			return nil
		})
	}
	_ = g.Wait()

	outcome := &models.PublishOutcome{
		UserID:  req.UserID,
		Status:  classify(results),
		Results: results,
	}

	slog.Info("publish finished", "user_id", req.UserID, "status", outcome.Status, "platforms", len(results))

	if err := s.events.PublishOutcome(ctx, outcome); err != nil {
		slog.Error("unable to emit publish event", "user_id", req.UserID, "error", err)
	}

	return outcome, nil
}

func (s *publishService) publishOne(ctx context.Context, req *models.PublishRequest, platform string, items []*MediaItem) (result *models.PublishResult) {
	result = &models.PublishResult{Platform: platform}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("publisher panicked", "platform", platform, "panic", r, "stack", string(debug.Stack()))
			result.Success = false
			result.PostID = ""
			result.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	fail := func(err error) *models.PublishResult {
		slog.Error("publish failed", "platform", platform, "user_id", req.UserID, "error", err)
		result.Error = err.Error()
		return result
	}

	pub, ok := s.registry.Publisher(platform)
	if !ok {
		return fail(newError(ErrUnsupportedPlatform, "unsupported platform: %s", platform))
	}

	c := pub.Constraints()
	if c.RequiresMedia && len(items) == 0 {
		return fail(newError(ErrInvalidRequest, "%s requires media", platform))
	}

	cred, err := s.creds.Resolve(ctx, req.UserID, platform, c.AccountType)
	if err != nil {
		return fail(err)
	}

	refs, warnings, err := s.media.UploadAll(ctx, pub, cred, items)
	result.Warnings = warnings
	if err != nil {
		return fail(err)
	}
	if len(items) > 0 && len(refs) == 0 && strings.TrimSpace(req.Content) == "" {
		return fail(newError(ErrMediaUploadFailed, "no media could be uploaded and there is no text to post"))
	}

	postID, err := pub.Publish(ctx, cred, req.Content, refs)
	if err != nil {
		return fail(err)
	}

	result.Success = true
	result.PostID = postID

	if cred.AccountID != 0 {
		if err := s.sa.TouchLastUsed(ctx, cred.AccountID, time.Now()); err != nil {
			slog.Error("unable to update last_used_at", "account_id", cred.AccountID, "error", err)
		}
	}

	return result
}

func classify(results []*models.PublishResult) string {
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	switch {
	case succeeded == len(results):
		return models.OutcomeAllSucceeded
	case succeeded == 0:
		return models.OutcomeFailed
	default:
		return models.OutcomePartial
	}
}
