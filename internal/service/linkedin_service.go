package service

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"
)

const linkedinUploadMechanism = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"

var linkedinEndpoints = map[string]string{
	"auth":     linkedin.Endpoint.AuthURL,
	"token":    linkedin.Endpoint.TokenURL,
	"userinfo": "https://api.linkedin.com/v2/userinfo",
	"assets":   "https://api.linkedin.com/v2/assets?action=registerUpload",
	"ugcPosts": "https://api.linkedin.com/v2/ugcPosts",
}

type LinkedinService struct {
	platformBase
	app config.OAuthApp
}

func NewLinkedinService(cfg *config.Config, opts ...Option) *LinkedinService {
	return &LinkedinService{
		platformBase: newPlatformBase(linkedinEndpoints, opts),
		app:          cfg.Linkedin,
	}
}

func (s *LinkedinService) Name() string { return "linkedin" }

func (s *LinkedinService) PKCE() bool { return false }

func (s *LinkedinService) Constraints() Constraints {
	return Constraints{MaxMedia: 9, Media: ImagesOnly}
}

func (s *LinkedinService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.app.ClientID,
		ClientSecret: s.app.ClientSecret,
		RedirectURL:  s.app.RedirectURI,
		Scopes:       []string{"openid", "profile", "email", "w_member_social"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.endpoint("auth"),
			TokenURL:  s.endpoint("token"),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (s *LinkedinService) AuthCodeURL(state, verifier string) string {
	return s.oauthConfig().AuthCodeURL(state)
}

func (s *LinkedinService) Exchange(ctx context.Context, code, verifier string) (*TokenSet, error) {
	tok, err := s.exchangeCode(ctx, s.oauthConfig(), code)
	if err != nil {
		return nil, err
	}
	return tokenSetFromOAuth(tok), nil
}

func (s *LinkedinService) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	return s.refreshWith(ctx, s.oauthConfig(), refreshToken)
}

func (s *LinkedinService) FetchProfiles(ctx context.Context, tok *TokenSet) ([]Profile, error) {
	var info transfer.LinkedinUserInfo
	_, err := s.http.doJSON(ctx, s.bearerClient(ctx, tok.AccessToken), "linkedin userinfo", true,
		getRequest(s.endpoint("userinfo")), &info)
	if err != nil {
		return nil, reclassify(ErrProfileFetchFailed, err)
	}
	if info.Sub == "" {
		return nil, newError(ErrProfileFetchFailed, "linkedin returned no member id")
	}

	return []Profile{{
		PlatformAccountID: info.Sub,
		AccountName:       info.Name,
		AccountType:       models.AccountTypeProfile,
		Metadata:          map[string]any{"email": info.Email, "author_urn": linkedinAuthor(info.Sub)},
	}}, nil
}

// linkedinAuthor accepts a bare member id or a full URN (shared organization credentials).
func linkedinAuthor(id string) string {
	if strings.HasPrefix(id, "urn:li:") {
		return id
	}
	return "urn:li:person:" + id
}

func restli(next requestFunc) requestFunc {
	return withHeader(next, "X-Restli-Protocol-Version", "2.0.0")
}

// Upload registers an image asset and transfers the bytes in one PUT.
func (s *LinkedinService) Upload(ctx context.Context, cred *models.Credentials, item *MediaItem) (*models.MediaRef, error) {
	contentType := item.ContentType(ctx)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, newError(ErrMediaUploadFailed, "linkedin shares accept images only, got %s", contentType)
	}

	data, err := item.Bytes(ctx)
	if err != nil {
		return nil, err
	}

	client := s.bearerClient(ctx, cred.AccessToken)
	payload := transfer.LinkedinRegisterUploadRequest{
		RegisterUploadRequest: transfer.LinkedinUploadSpec{
			Recipes: []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			Owner:   linkedinAuthor(cred.PlatformAccountID),
			ServiceRelationships: []transfer.LinkedinServiceRelationship{{
				RelationshipType: "OWNER",
				Identifier:       "urn:li:userGeneratedContent",
			}},
		},
	}

	var registered transfer.LinkedinRegisterUploadResponse
	_, err = s.http.doJSON(ctx, client, "linkedin register upload", true,
		restli(jsonRequest(http.MethodPost, s.endpoint("assets"), payload)), &registered)
	if err != nil {
		return nil, err
	}

	mechanism, ok := registered.Value.UploadMechanism[linkedinUploadMechanism]
	if !ok || mechanism.UploadURL == "" || registered.Value.Asset == "" {
		return nil, newError(ErrMediaUploadFailed, "linkedin returned no upload url")
	}

	_, err = s.http.do(ctx, client, "linkedin image upload", true, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, mechanism.UploadURL, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		for k, v := range mechanism.Headers {
			req.Header.Set(k, v)
		}
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	return &models.MediaRef{ID: registered.Value.Asset, ContentType: contentType}, nil
}

func (s *LinkedinService) Publish(ctx context.Context, cred *models.Credentials, content string, media []*models.MediaRef) (string, error) {
	share := transfer.LinkedinShare{
		ShareCommentary:    transfer.LinkedinText{Text: content},
		ShareMediaCategory: "NONE",
	}
	if len(media) > 0 {
		share.ShareMediaCategory = "IMAGE"
		for _, m := range media {
			share.Media = append(share.Media, transfer.LinkedinMedia{Status: "READY", Media: m.ID})
		}
	}

	payload := transfer.LinkedinShareRequest{
		Author:          linkedinAuthor(cred.PlatformAccountID),
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]transfer.LinkedinShare{"com.linkedin.ugc.ShareContent": share},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	var result transfer.LinkedinShareResponse
	resp, err := s.http.doJSON(ctx, s.bearerClient(ctx, cred.AccessToken), "linkedin ugc post", true,
		restli(jsonRequest(http.MethodPost, s.endpoint("ugcPosts"), payload)), &result)
	if err != nil {
		return "", err
	}

	if result.ID == "" {
		result.ID = resp.Header.Get("X-RestLi-Id")
	}
	if result.ID == "" {
		return "", newError(ErrUpstreamAPI, "linkedin returned no post id")
	}

	return result.ID, nil
}
