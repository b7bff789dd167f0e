package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

var instagramEndpoints = map[string]string{
	"auth":  "https://www.instagram.com/oauth/authorize",
	"token": "https://api.instagram.com/oauth/access_token",
	"graph": "https://graph.instagram.com",
}

const instagramAPIVersion = "v21.0"

type InstagramService struct {
	platformBase
	app          config.OAuthApp
	pollInterval time.Duration
	maxPolls     int
}

func NewInstagramService(cfg *config.Config, opts ...Option) *InstagramService {
	return &InstagramService{
		platformBase: newPlatformBase(instagramEndpoints, opts),
		app:          cfg.Instagram,
		pollInterval: 3 * time.Second,
		maxPolls:     20,
	}
}

func (s *InstagramService) Name() string { return "instagram" }

func (s *InstagramService) PKCE() bool { return false }

func (s *InstagramService) Constraints() Constraints {
	return Constraints{MaxMedia: 10, RequiresMedia: true}
}

func (s *InstagramService) AuthCodeURL(state, verifier string) string {
	params := url.Values{}
	params.Add("client_id", s.app.ClientID)
	params.Add("scope", "instagram_business_basic,instagram_business_content_publish")
	params.Add("response_type", "code")
	params.Add("redirect_uri", s.app.RedirectURI)
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", s.endpoint("auth"), params.Encode())
}

// Exchange gets a short-lived token for the code and upgrades it to a long-lived one.
func (s *InstagramService) Exchange(ctx context.Context, code, verifier string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("client_id", s.app.ClientID)
	data.Set("client_secret", s.app.ClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", s.app.RedirectURI)
	data.Set("code", code)

	var short transfer.InstagramShortLivedToken
	_, err := s.http.doJSON(ctx, nil, "instagram short-lived token", false,
		formRequest(s.endpoint("token"), data), &short)
	if err != nil {
		return nil, reclassify(ErrTokenExchangeFailed, err)
	}
	if short.AccessToken == "" {
		return nil, newError(ErrTokenExchangeFailed, "instagram returned no access token")
	}

	params := url.Values{}
	params.Set("grant_type", "ig_exchange_token")
	params.Set("client_secret", s.app.ClientSecret)
	params.Set("access_token", short.AccessToken)

	var long transfer.InstagramLongLivedToken
	_, err = s.http.doJSON(ctx, nil, "instagram long-lived token", false,
		getRequest(s.endpoint("graph")+"/access_token?"+params.Encode()), &long)
	if err != nil {
		return nil, reclassify(ErrTokenExchangeFailed, err)
	}
	if long.AccessToken == "" {
		return nil, newError(ErrTokenExchangeFailed, "instagram returned no long-lived token")
	}

	return &TokenSet{
		AccessToken:  long.AccessToken,
		RefreshToken: long.AccessToken,
		ExpiresAt:    expiresAt(long.ExpiresIn),
		Extra:        map[string]string{"user_id": strconv.FormatInt(short.UserID, 10)},
	}, nil
}

// Refresh extends a long-lived token; Instagram refreshes with the token itself.
func (s *InstagramService) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	params := url.Values{}
	params.Set("grant_type", "ig_refresh_token")
	params.Set("access_token", refreshToken)

	var result transfer.InstagramLongLivedToken
	_, err := s.http.doJSON(ctx, nil, "instagram refresh token", false,
		getRequest(s.endpoint("graph")+"/refresh_access_token?"+params.Encode()), &result)
	if err != nil {
		return nil, reclassify(ErrTokenExchangeFailed, err)
	}

	return &TokenSet{
		AccessToken:  result.AccessToken,
		RefreshToken: result.AccessToken,
		ExpiresAt:    expiresAt(result.ExpiresIn),
	}, nil
}

func (s *InstagramService) FetchProfiles(ctx context.Context, tok *TokenSet) ([]Profile, error) {
	params := url.Values{}
	params.Set("fields", "id,user_id,username,name,account_type,profile_picture_url")
	params.Set("access_token", tok.AccessToken)

	var userInfo transfer.InstagramUserInfo
	_, err := s.http.doJSON(ctx, nil, "instagram me", true,
		getRequest(s.endpoint("graph")+"/me?"+params.Encode()), &userInfo)
	if err != nil {
		return nil, reclassify(ErrProfileFetchFailed, err)
	}

	accountID := userInfo.UserID
	if accountID == "" {
		accountID = userInfo.ID
	}
	if accountID == "" {
		return nil, newError(ErrProfileFetchFailed, "instagram returned no user id")
	}

	name := userInfo.Name
	if name == "" {
		name = userInfo.Username
	}

	return []Profile{{
		PlatformAccountID: accountID,
		AccountName:       name,
		AccountType:       models.AccountTypeBusiness,
		Metadata: map[string]any{
			"username":            userInfo.Username,
			"profile_picture_url": userInfo.ProfilePicture,
		},
	}}, nil
}

// Upload hands Instagram a public URL to pull from.
func (s *InstagramService) Upload(ctx context.Context, cred *models.Credentials, item *MediaItem) (*models.MediaRef, error) {
	contentType := item.ContentType(ctx)
	if !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		return nil, newError(ErrMediaUploadFailed, "instagram cannot publish %s", contentType)
	}

	publicURL, err := item.PublicURL(ctx)
	if err != nil {
		return nil, err
	}
	return &models.MediaRef{URL: publicURL, ContentType: contentType}, nil
}

func (s *InstagramService) Publish(ctx context.Context, cred *models.Credentials, caption string, media []*models.MediaRef) (string, error) {
	if len(media) == 0 {
		return "", newError(ErrInvalidRequest, "instagram requires media")
	}

	var containerID string
	var err error
	if len(media) == 1 {
		containerID, err = s.createContainer(ctx, cred, s.mediaRequest(cred, media[0], caption, false))
	} else {
		containerID, err = s.createCarousel(ctx, cred, caption, media)
	}
	if err != nil {
		return "", err
	}

	if err := s.waitReady(ctx, cred, containerID); err != nil {
		return "", err
	}

	return s.publishContainer(ctx, cred, containerID)
}

func (s *InstagramService) mediaRequest(cred *models.Credentials, ref *models.MediaRef, caption string, carouselItem bool) transfer.InstagramContainerRequest {
	req := transfer.InstagramContainerRequest{
		Caption:        caption,
		IsCarouselItem: carouselItem,
		AccessToken:    cred.AccessToken,
	}
	if strings.HasPrefix(ref.ContentType, "video/") {
		req.VideoURL = ref.URL
		req.MediaType = "REELS"
		if carouselItem {
			req.MediaType = "VIDEO"
		}
	} else {
		req.ImageURL = ref.URL
	}
	return req
}

func (s *InstagramService) createCarousel(ctx context.Context, cred *models.Credentials, caption string, media []*models.MediaRef) (string, error) {
	children := make([]string, 0, len(media))
	for _, ref := range media {
		id, err := s.createContainer(ctx, cred, s.mediaRequest(cred, ref, "", true))
		if err != nil {
			return "", err
		}
		if err := s.waitReady(ctx, cred, id); err != nil {
			return "", err
		}
		children = append(children, id)
	}

	return s.createContainer(ctx, cred, transfer.InstagramContainerRequest{
		MediaType:   "CAROUSEL",
		Caption:     caption,
		Children:    strings.Join(children, ","),
		AccessToken: cred.AccessToken,
	})
}

func (s *InstagramService) createContainer(ctx context.Context, cred *models.Credentials, payload transfer.InstagramContainerRequest) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/media", s.endpoint("graph"), instagramAPIVersion, cred.PlatformAccountID)

	var result transfer.InstagramIDResponse
	_, err := s.http.doJSON(ctx, nil, "instagram create container", true,
		jsonRequest(http.MethodPost, endpoint, payload), &result)
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", newError(ErrUpstreamAPI, "no media ID returned from Instagram")
	}
	return result.ID, nil
}

// waitReady polls the container until Instagram finished fetching its media.
func (s *InstagramService) waitReady(ctx context.Context, cred *models.Credentials, containerID string) error {
	params := url.Values{}
	params.Set("fields", "status_code,status")
	params.Set("access_token", cred.AccessToken)
	endpoint := fmt.Sprintf("%s/%s/%s?%s", s.endpoint("graph"), instagramAPIVersion, containerID, params.Encode())

	for polls := 0; ; polls++ {
		var status transfer.InstagramContainerStatus
		_, err := s.http.doJSON(ctx, nil, "instagram container status", true, getRequest(endpoint), &status)
		if err != nil {
			return err
		}

		switch status.StatusCode {
		case "FINISHED", "PUBLISHED", "":
			return nil
		case "ERROR", "EXPIRED":
			return newError(ErrMediaUploadFailed, "instagram container %s: %s %s", containerID, status.StatusCode, status.Status)
		}

		if polls+1 >= s.maxPolls {
			return newError(ErrMediaUploadFailed, "instagram container %s still %s", containerID, status.StatusCode)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *InstagramService) publishContainer(ctx context.Context, cred *models.Credentials, containerID string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/media_publish", s.endpoint("graph"), instagramAPIVersion, cred.PlatformAccountID)
	payload := map[string]string{
		"creation_id":  containerID,
		"access_token": cred.AccessToken,
	}

	var result transfer.InstagramIDResponse
	_, err := s.http.doJSON(ctx, nil, "instagram media_publish", true,
		jsonRequest(http.MethodPost, endpoint, payload), &result)
	if err != nil {
		return "", err
	}

	slog.Info("instagram media published", "container_id", containerID, "media_id", result.ID)
	return result.ID, nil
}
