package service

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
)

var facebookEndpoints = map[string]string{
	"auth":  facebook.Endpoint.AuthURL,
	"token": facebook.Endpoint.TokenURL,
	"graph": "https://graph.facebook.com/v21.0",
}

type FacebookService struct {
	platformBase
	app config.OAuthApp
}

func NewFacebookService(cfg *config.Config, opts ...Option) *FacebookService {
	return &FacebookService{
		platformBase: newPlatformBase(facebookEndpoints, opts),
		app:          cfg.Facebook,
	}
}

func (s *FacebookService) Name() string { return "facebook" }

func (s *FacebookService) PKCE() bool { return false }

func (s *FacebookService) Constraints() Constraints {
	return Constraints{MaxMedia: 10, Media: ImagesOnly, AccountType: models.AccountTypePage}
}

func (s *FacebookService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.app.ClientID,
		ClientSecret: s.app.ClientSecret,
		RedirectURL:  s.app.RedirectURI,
		Scopes:       []string{"public_profile", "pages_show_list", "pages_read_engagement", "pages_manage_posts"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.endpoint("auth"),
			TokenURL:  s.endpoint("token"),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (s *FacebookService) AuthCodeURL(state, verifier string) string {
	return s.oauthConfig().AuthCodeURL(state)
}

// Exchange trades the code for a short-lived user token and upgrades it to a long-lived one.
func (s *FacebookService) Exchange(ctx context.Context, code, verifier string) (*TokenSet, error) {
	short, err := s.exchangeCode(ctx, s.oauthConfig(), code)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", s.app.ClientID)
	params.Set("client_secret", s.app.ClientSecret)
	params.Set("fb_exchange_token", short.AccessToken)

	var long transfer.FacebookTokenResponse
	_, err = s.http.doJSON(ctx, nil, "facebook long-lived token", false,
		getRequest(s.endpoint("graph")+"/oauth/access_token?"+params.Encode()), &long)
	if err != nil {
		return nil, reclassify(ErrTokenExchangeFailed, err)
	}
	if long.AccessToken == "" {
		return nil, newError(ErrTokenExchangeFailed, "facebook returned no long-lived token")
	}

	return &TokenSet{
		AccessToken: long.AccessToken,
		ExpiresAt:   expiresAt(long.ExpiresIn),
	}, nil
}

// FetchProfiles returns the user profile first, followed by one entry per
// managed page carrying its page token.
func (s *FacebookService) FetchProfiles(ctx context.Context, tok *TokenSet) ([]Profile, error) {
	params := url.Values{}
	params.Set("fields", "id,name")
	params.Set("access_token", tok.AccessToken)

	var user transfer.FacebookUser
	_, err := s.http.doJSON(ctx, nil, "facebook me", true,
		getRequest(s.endpoint("graph")+"/me?"+params.Encode()), &user)
	if err != nil {
		return nil, reclassify(ErrProfileFetchFailed, err)
	}
	if user.ID == "" {
		return nil, newError(ErrProfileFetchFailed, "facebook returned no user id")
	}

	profiles := []Profile{{
		PlatformAccountID: user.ID,
		AccountName:       user.Name,
		AccountType:       models.AccountTypeProfile,
	}}

	params.Set("fields", "id,name,access_token,category")
	var pages transfer.FacebookPagesResponse
	_, err = s.http.doJSON(ctx, nil, "facebook me/accounts", true,
		getRequest(s.endpoint("graph")+"/me/accounts?"+params.Encode()), &pages)
	if err != nil {
		return nil, reclassify(ErrProfileFetchFailed, err)
	}

	for _, page := range pages.Data {
		if page.ID == "" || page.AccessToken == "" {
			continue
		}
		profiles = append(profiles, Profile{
			PlatformAccountID: page.ID,
			AccountName:       page.Name,
			AccountType:       models.AccountTypePage,
			AccessToken:       page.AccessToken,
			Metadata:          map[string]any{"category": page.Category, "owner_id": user.ID},
		})
	}

	return profiles, nil
}

// Upload stores the photo unpublished on the page so the feed post can attach it.
func (s *FacebookService) Upload(ctx context.Context, cred *models.Credentials, item *MediaItem) (*models.MediaRef, error) {
	contentType := item.ContentType(ctx)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, newError(ErrMediaUploadFailed, "facebook feed posts accept images only, got %s", contentType)
	}

	data, err := item.Bytes(ctx)
	if err != nil {
		return nil, err
	}

	build := func(ctx context.Context) (*http.Request, error) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		if err := w.WriteField("published", "false"); err != nil {
			return nil, err
		}
		if err := w.WriteField("access_token", cred.AccessToken); err != nil {
			return nil, err
		}
		part, err := w.CreateFormFile("source", fmt.Sprintf("media-%d", item.Index))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/%s/photos", s.endpoint("graph"), cred.PlatformAccountID), &body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}

	var result transfer.FacebookIDResponse
	if _, err := s.http.doJSON(ctx, nil, "facebook photo upload", true, build, &result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, newError(ErrMediaUploadFailed, "facebook returned no photo id")
	}

	return &models.MediaRef{ID: result.ID, ContentType: contentType}, nil
}

func (s *FacebookService) Publish(ctx context.Context, cred *models.Credentials, content string, media []*models.MediaRef) (string, error) {
	values := url.Values{}
	values.Set("access_token", cred.AccessToken)
	if content != "" {
		values.Set("message", content)
	}
	for i, m := range media {
		values.Set(fmt.Sprintf("attached_media[%d]", i), fmt.Sprintf(`{"media_fbid":"%s"}`, m.ID))
	}

	var result transfer.FacebookIDResponse
	_, err := s.http.doJSON(ctx, nil, "facebook feed post", true,
		formRequest(fmt.Sprintf("%s/%s/feed", s.endpoint("graph"), cred.PlatformAccountID), values), &result)
	if err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", newError(ErrUpstreamAPI, "facebook returned no post id")
	}

	return result.ID, nil
}
