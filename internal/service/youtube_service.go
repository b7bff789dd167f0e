package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeTitleLimit = 100

var youtubeEndpoints = map[string]string{
	"auth":   google.Endpoint.AuthURL,
	"token":  google.Endpoint.TokenURL,
	"revoke": "https://oauth2.googleapis.com/revoke",
	"api":    "",
}

type YoutubeService struct {
	platformBase
	app config.OAuthApp
}

func NewYoutubeService(cfg *config.Config, opts ...Option) *YoutubeService {
	return &YoutubeService{
		platformBase: newPlatformBase(youtubeEndpoints, opts),
		app:          cfg.Google,
	}
}

func (s *YoutubeService) Name() string { return "youtube" }

func (s *YoutubeService) PKCE() bool { return false }

func (s *YoutubeService) Constraints() Constraints {
	return Constraints{MaxMedia: 1, RequiresMedia: true, Media: VideoOnly, AccountType: models.AccountTypeChannel}
}

func (s *YoutubeService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.app.ClientID,
		ClientSecret: s.app.ClientSecret,
		RedirectURL:  s.app.RedirectURI,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.profile",
			youtube.YoutubeReadonlyScope,
			youtube.YoutubeUploadScope,
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.endpoint("auth"),
			TokenURL:  s.endpoint("token"),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL asks for offline access so the exchange yields a refresh token.
func (s *YoutubeService) AuthCodeURL(state, verifier string) string {
	return s.oauthConfig().AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (s *YoutubeService) Exchange(ctx context.Context, code, verifier string) (*TokenSet, error) {
	tok, err := s.exchangeCode(ctx, s.oauthConfig(), code)
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		return nil, newError(ErrTokenExchangeFailed, "google returned no refresh token")
	}
	return tokenSetFromOAuth(tok), nil
}

func (s *YoutubeService) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	return s.refreshWith(ctx, s.oauthConfig(), refreshToken)
}

func (s *YoutubeService) Revoke(ctx context.Context, acc *models.SocialAccount, accessToken string) error {
	data := url.Values{}
	data.Set("token", accessToken)
	_, err := s.http.do(ctx, nil, "google revoke", true, formRequest(s.endpoint("revoke"), data))
	return err
}

func (s *YoutubeService) service(ctx context.Context, accessToken string) (*youtube.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(s.bearerClient(ctx, accessToken))}
	if api := s.endpoint("api"); api != "" {
		opts = append(opts, option.WithEndpoint(api))
	}
	return youtube.NewService(ctx, opts...)
}

func (s *YoutubeService) FetchProfiles(ctx context.Context, tok *TokenSet) ([]Profile, error) {
	yt, err := s.service(ctx, tok.AccessToken)
	if err != nil {
		return nil, &Error{Kind: ErrProfileFetchFailed, Err: err}
	}

	callCtx, cancel := s.http.withTimeout(ctx)
	defer cancel()

	resp, err := yt.Channels.List([]string{"snippet"}).Mine(true).Context(callCtx).Do()
	if err != nil {
		return nil, &Error{Kind: ErrProfileFetchFailed, Message: "youtube channels.list", Err: err}
	}
	if len(resp.Items) == 0 {
		return nil, newError(ErrProfileFetchFailed, "no youtube channel found for this google account")
	}

	profiles := make([]Profile, 0, len(resp.Items))
	for _, ch := range resp.Items {
		p := Profile{
			PlatformAccountID: ch.Id,
			AccountType:       models.AccountTypeChannel,
		}
		if ch.Snippet != nil {
			p.AccountName = ch.Snippet.Title
			p.Metadata = map[string]any{"custom_url": ch.Snippet.CustomUrl}
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// Upload only checks the item. Inline bytes ride on the reference and hosted
// videos are streamed to YouTube on Publish.
func (s *YoutubeService) Upload(ctx context.Context, cred *models.Credentials, item *MediaItem) (*models.MediaRef, error) {
	if !item.IsVideo(ctx) {
		return nil, newError(ErrMediaUploadFailed, "youtube requires a video, got %s", item.ContentType(ctx))
	}

	ref := &models.MediaRef{URL: item.URL, ContentType: item.ContentType(ctx)}
	if item.Inline() {
		data, err := item.Bytes(ctx)
		if err != nil {
			return nil, err
		}
		ref.Data = data
	}
	return ref, nil
}

func (s *YoutubeService) openVideo(ctx context.Context, ref *models.MediaRef) (io.ReadCloser, error) {
	if ref.Data != nil {
		return io.NopCloser(bytes.NewReader(ref.Data)), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, newError(ErrInvalidRequest, "invalid video url: %v", err)
	}
	resp, err := s.http.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, newError(ErrUpstreamTimeout, "fetching video timed out")
		}
		return nil, &Error{Kind: ErrMediaUploadFailed, Message: "fetching video", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, newError(ErrMediaUploadFailed, "fetching video: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *YoutubeService) Publish(ctx context.Context, cred *models.Credentials, content string, media []*models.MediaRef) (string, error) {
	if len(media) != 1 || !strings.HasPrefix(media[0].ContentType, "video/") {
		return "", newError(ErrInvalidRequest, "youtube requires exactly one video")
	}

	yt, err := s.service(ctx, cred.AccessToken)
	if err != nil {
		return "", &Error{Kind: ErrUpstreamAPI, Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.mediaTimeout)
	defer cancel()

	body, err := s.openVideo(callCtx, media[0])
	if err != nil {
		return "", err
	}
	defer body.Close()

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       youtubeTitle(content),
			Description: content,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	uploaded, err := yt.Videos.Insert([]string{"snippet", "status"}, video).
		Media(body).
		Context(callCtx).
		Do()
	if err != nil {
		if isTimeout(err) {
			return "", newError(ErrUpstreamTimeout, "youtube videos.insert timed out")
		}
		return "", &Error{Kind: ErrUpstreamAPI, Message: "youtube videos.insert", Err: err}
	}

	return uploaded.Id, nil
}

func youtubeTitle(content string) string {
	title, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	if title == "" {
		return "Untitled"
	}
	if r := []rune(title); len(r) > youtubeTitleLimit {
		return string(r[:youtubeTitleLimit])
	}
	return title
}
