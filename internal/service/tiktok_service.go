package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

const tiktokScopes = "user.info.basic,user.info.profile,video.publish,video.upload"

var tiktokEndpoints = map[string]string{
	"auth":         "https://www.tiktok.com/v2/auth/authorize/",
	"token":        "https://open.tiktokapis.com/v2/oauth/token/",
	"revoke":       "https://open.tiktokapis.com/v2/oauth/revoke/",
	"userinfo":     "https://open.tiktokapis.com/v2/user/info/",
	"creator_info": "https://open.tiktokapis.com/v2/post/publish/creator_info/query/",
	"video_init":   "https://open.tiktokapis.com/v2/post/publish/video/init/",
	"content_init": "https://open.tiktokapis.com/v2/post/publish/content/init/",
}

type TiktokService struct {
	platformBase
	app config.OAuthApp
}

func NewTiktokService(cfg *config.Config, opts ...Option) *TiktokService {
	return &TiktokService{
		platformBase: newPlatformBase(tiktokEndpoints, opts),
		app:          cfg.Tiktok,
	}
}

func (s *TiktokService) Name() string { return "tiktok" }

func (s *TiktokService) PKCE() bool { return false }

func (s *TiktokService) Constraints() Constraints {
	return Constraints{MaxMedia: 35, RequiresMedia: true, Media: ImagesOrOneVideo}
}

func (s *TiktokService) AuthCodeURL(state, verifier string) string {
	params := url.Values{}
	params.Add("client_key", s.app.ClientID)
	params.Add("scope", tiktokScopes)
	params.Add("response_type", "code")
	params.Add("redirect_uri", s.app.RedirectURI)
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", s.endpoint("auth"), params.Encode())
}

func (s *TiktokService) token(ctx context.Context, op string, data url.Values) (*TokenSet, error) {
	data.Set("client_key", s.app.ClientID)
	data.Set("client_secret", s.app.ClientSecret)

	var tokenResponse transfer.TiktokTokenResponse
	_, err := s.http.doJSON(ctx, nil, op, false, formRequest(s.endpoint("token"), data), &tokenResponse)
	if err != nil {
		return nil, reclassify(ErrTokenExchangeFailed, err)
	}
	if tokenResponse.AccessToken == "" {
		return nil, newError(ErrTokenExchangeFailed, "%s: %s %s", op, tokenResponse.Error, tokenResponse.ErrorDescription)
	}

	return &TokenSet{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		ExpiresAt:    expiresAt(tokenResponse.ExpiresIn),
		Extra:        map[string]string{"open_id": tokenResponse.OpenID},
	}, nil
}

func (s *TiktokService) Exchange(ctx context.Context, code, verifier string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("code", code)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", s.app.RedirectURI)
	return s.token(ctx, "tiktok token exchange", data)
}

func (s *TiktokService) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	return s.token(ctx, "tiktok token refresh", data)
}

func (s *TiktokService) Revoke(ctx context.Context, acc *models.SocialAccount, accessToken string) error {
	data := url.Values{}
	data.Set("client_key", s.app.ClientID)
	data.Set("client_secret", s.app.ClientSecret)
	data.Set("token", accessToken)

	_, err := s.http.do(ctx, nil, "tiktok revoke", true, formRequest(s.endpoint("revoke"), data))
	return err
}

func (s *TiktokService) FetchProfiles(ctx context.Context, tok *TokenSet) ([]Profile, error) {
	endpoint := s.endpoint("userinfo") + "?fields=open_id,avatar_url,display_name,username"

	var userInfo transfer.TikTokResponse
	_, err := s.http.doJSON(ctx, s.bearerClient(ctx, tok.AccessToken), "tiktok user info", true,
		getRequest(endpoint), &userInfo)
	if err != nil {
		return nil, reclassify(ErrProfileFetchFailed, err)
	}
	if !userInfo.Error.OK() {
		return nil, newError(ErrProfileFetchFailed, "tiktok user info: %s", userInfo.Error.Message)
	}

	user := userInfo.Data.User
	if user.OpenID == "" {
		user.OpenID = tok.Extra["open_id"]
	}
	if user.OpenID == "" {
		return nil, newError(ErrProfileFetchFailed, "tiktok returned no open_id")
	}

	return []Profile{{
		PlatformAccountID: user.OpenID,
		AccountName:       user.DisplayName,
		AccountType:       models.AccountTypeProfile,
		Metadata:          map[string]any{"username": user.Username, "avatar_url": user.AvatarURL},
	}}, nil
}

// Upload hands TikTok a public URL to pull from.
func (s *TiktokService) Upload(ctx context.Context, cred *models.Credentials, item *MediaItem) (*models.MediaRef, error) {
	contentType := item.ContentType(ctx)
	if !strings.HasPrefix(contentType, "image/") && !strings.HasPrefix(contentType, "video/") {
		return nil, newError(ErrMediaUploadFailed, "tiktok cannot publish %s", contentType)
	}

	publicURL, err := item.PublicURL(ctx)
	if err != nil {
		return nil, err
	}
	return &models.MediaRef{URL: publicURL, ContentType: contentType}, nil
}

// Publish posts a single video, or a photo post of the images. UploadAll has
// already reduced the media to one of the two.
func (s *TiktokService) Publish(ctx context.Context, cred *models.Credentials, content string, media []*models.MediaRef) (string, error) {
	if len(media) == 0 {
		return "", newError(ErrInvalidRequest, "tiktok requires media")
	}

	client := s.bearerClient(ctx, cred.AccessToken)

	var creator transfer.TiktokCreatorInfoResponse
	_, err := s.http.doJSON(ctx, client, "tiktok creator info", true,
		jsonRequest(http.MethodPost, s.endpoint("creator_info"), struct{}{}), &creator)
	if err != nil {
		return "", err
	}
	if !creator.Error.OK() {
		return "", newError(ErrUpstreamAPI, "tiktok creator info: %s", creator.Error.Message)
	}

	var endpoint string
	var payload any
	if strings.HasPrefix(media[0].ContentType, "video/") {
		endpoint = s.endpoint("video_init")
		payload = transfer.VideoUploadRequest{
			PostInfo: transfer.VideoPostInfo{
				Title:                 content,
				PrivacyLevel:          "PUBLIC_TO_EVERYONE",
				VideoCoverTimestampMs: 1000,
			},
			SourceInfo: transfer.VideoSourceInfo{
				Source:   "PULL_FROM_URL",
				VideoURL: media[0].URL,
			},
		}
	} else {
		photos := make([]string, 0, len(media))
		for _, m := range media {
			if strings.HasPrefix(m.ContentType, "image/") {
				photos = append(photos, m.URL)
			}
		}
		endpoint = s.endpoint("content_init")
		payload = transfer.PhotoUploadRequest{
			PostInfo: transfer.PhotoPostInfo{
				Title:        content,
				Description:  content,
				PrivacyLevel: "PUBLIC_TO_EVERYONE",
				AutoAddMusic: true,
			},
			SourceInfo: transfer.PhotoSourceInfo{
				Source:      "PULL_FROM_URL",
				PhotoImages: photos,
			},
			PostMode:  "DIRECT_POST",
			MediaType: "PHOTO",
		}
	}

	var result transfer.TikTokUploadResponse
	_, err = s.http.doJSON(ctx, client, "tiktok publish init", true,
		jsonRequest(http.MethodPost, endpoint, payload), &result)
	if err != nil {
		return "", err
	}
	if !result.Error.OK() || result.Data.PublishID == "" {
		return "", newError(ErrUpstreamAPI, "tiktok publish init: %s %s", result.Error.Code, result.Error.Message)
	}

	return result.Data.PublishID, nil
}
