package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"golang.org/x/oauth2"
)

var twitterEndpoints = map[string]string{
	"auth":   "https://twitter.com/i/oauth2/authorize",
	"token":  "https://api.twitter.com/2/oauth2/token",
	"me":     "https://api.twitter.com/2/users/me",
	"tweets": "https://api.twitter.com/2/tweets",
	"upload": "https://upload.twitter.com/1.1/media/upload.json",
}

type TwitterService struct {
	platformBase
	app    config.OAuthApp
	shared config.TwitterShared
	chunks ChunkedUploader
}

func NewTwitterService(cfg *config.Config, opts ...Option) *TwitterService {
	return &TwitterService{
		platformBase: newPlatformBase(twitterEndpoints, opts),
		app:          cfg.Twitter,
		shared:       cfg.TwitterShared,
		chunks:       defaultChunkedUploader,
	}
}

func (s *TwitterService) Name() string { return "twitter" }

func (s *TwitterService) PKCE() bool { return true }

func (s *TwitterService) Constraints() Constraints {
	return Constraints{MaxMedia: 4, Media: ImagesOrOneVideo}
}

func (s *TwitterService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.app.ClientID,
		ClientSecret: s.app.ClientSecret,
		RedirectURL:  s.app.RedirectURI,
		Scopes:       []string{"tweet.read", "tweet.write", "users.read", "offline.access", "media.write"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   s.endpoint("auth"),
			TokenURL:  s.endpoint("token"),
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func (s *TwitterService) AuthCodeURL(state, verifier string) string {
	return s.oauthConfig().AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (s *TwitterService) Exchange(ctx context.Context, code, verifier string) (*TokenSet, error) {
	tok, err := s.exchangeCode(ctx, s.oauthConfig(), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, err
	}
	return tokenSetFromOAuth(tok), nil
}

func (s *TwitterService) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	return s.refreshWith(ctx, s.oauthConfig(), refreshToken)
}

func (s *TwitterService) FetchProfiles(ctx context.Context, tok *TokenSet) ([]Profile, error) {
	var user transfer.TwitterUserResponse
	_, err := s.http.doJSON(ctx, s.bearerClient(ctx, tok.AccessToken), "twitter users/me", true,
		getRequest(s.endpoint("me")), &user)
	if err != nil {
		return nil, reclassify(ErrProfileFetchFailed, err)
	}
	if user.Data.ID == "" {
		return nil, newError(ErrProfileFetchFailed, "twitter returned no user id")
	}

	return []Profile{{
		PlatformAccountID: user.Data.ID,
		AccountName:       user.Data.Username,
		AccountType:       models.AccountTypeProfile,
		Metadata:          map[string]any{"name": user.Data.Name},
	}}, nil
}

// client signs with OAuth 1.0a for the shared app-owner credentials and with
// the user's OAuth2 bearer token otherwise.
func (s *TwitterService) client(ctx context.Context, cred *models.Credentials) *http.Client {
	if cred.Shared && cred.AccessTokenSecret != "" {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, s.http.client)
		return oauth1.NewConfig(s.shared.ConsumerKey, s.shared.ConsumerSecret).
			Client(ctx, oauth1.NewToken(cred.AccessToken, cred.AccessTokenSecret))
	}
	return s.bearerClient(ctx, cred.AccessToken)
}

func (s *TwitterService) Upload(ctx context.Context, cred *models.Credentials, item *MediaItem) (*models.MediaRef, error) {
	data, err := item.Bytes(ctx)
	if err != nil {
		return nil, err
	}
	contentType := item.ContentType(ctx)

	transport := &twitterUploadTransport{
		s:        s,
		client:   s.client(ctx, cred),
		category: twitterMediaCategory(contentType),
	}

	session, err := s.chunks.Upload(ctx, transport, data, contentType)
	if err != nil {
		return nil, err
	}

	return &models.MediaRef{ID: session.MediaID, ContentType: contentType}, nil
}

func (s *TwitterService) Publish(ctx context.Context, cred *models.Credentials, content string, media []*models.MediaRef) (string, error) {
	payload := transfer.TwitterTweetRequest{Text: content}
	if len(media) > 0 {
		ids := make([]string, 0, len(media))
		for _, m := range media {
			ids = append(ids, m.ID)
		}
		payload.Media = &transfer.TwitterTweetMedia{MediaIDs: ids}
	}

	var result transfer.TwitterTweetResponse
	_, err := s.http.doJSON(ctx, s.client(ctx, cred), "twitter create tweet", true,
		jsonRequest(http.MethodPost, s.endpoint("tweets"), payload), &result)
	if err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", newError(ErrUpstreamAPI, "twitter returned no tweet id")
	}

	return result.Data.ID, nil
}

func twitterMediaCategory(contentType string) string {
	switch {
	case contentType == "image/gif":
		return "tweet_gif"
	case strings.HasPrefix(contentType, "video/"):
		return "tweet_video"
	default:
		return "tweet_image"
	}
}

type twitterUploadTransport struct {
	s        *TwitterService
	client   *http.Client
	category string
}

func (t *twitterUploadTransport) Init(ctx context.Context, totalBytes int64, contentType string) (string, error) {
	values := url.Values{}
	values.Set("command", "INIT")
	values.Set("total_bytes", strconv.FormatInt(totalBytes, 10))
	values.Set("media_type", contentType)
	values.Set("media_category", t.category)

	var result transfer.TwitterMediaResponse
	_, err := t.s.http.doJSON(ctx, t.client, "twitter media INIT", true,
		formRequest(t.s.endpoint("upload"), values), &result)
	if err != nil {
		return "", err
	}
	if result.MediaIDString == "" {
		return "", newError(ErrUpstreamAPI, "twitter media INIT returned no media id")
	}
	return result.MediaIDString, nil
}

func (t *twitterUploadTransport) Append(ctx context.Context, mediaID string, index int, segment string) error {
	values := url.Values{}
	values.Set("command", "APPEND")
	values.Set("media_id", mediaID)
	values.Set("segment_index", strconv.Itoa(index))
	values.Set("media_data", segment)

	_, err := t.s.http.do(ctx, t.client, "twitter media APPEND", true,
		formRequest(t.s.endpoint("upload"), values))
	return err
}

func (t *twitterUploadTransport) Finalize(ctx context.Context, mediaID string) (*ProcessingInfo, error) {
	values := url.Values{}
	values.Set("command", "FINALIZE")
	values.Set("media_id", mediaID)

	var result transfer.TwitterMediaResponse
	_, err := t.s.http.doJSON(ctx, t.client, "twitter media FINALIZE", true,
		formRequest(t.s.endpoint("upload"), values), &result)
	if err != nil {
		return nil, err
	}
	return twitterProcessingInfo(result.ProcessingInfo), nil
}

func (t *twitterUploadTransport) Status(ctx context.Context, mediaID string) (*ProcessingInfo, error) {
	values := url.Values{}
	values.Set("command", "STATUS")
	values.Set("media_id", mediaID)

	var result transfer.TwitterMediaResponse
	_, err := t.s.http.doJSON(ctx, t.client, "twitter media STATUS", true,
		getRequest(t.s.endpoint("upload")+"?"+values.Encode()), &result)
	if err != nil {
		return nil, err
	}
	if result.ProcessingInfo == nil {
		return &ProcessingInfo{State: ProcessingSucceeded}, nil
	}
	return twitterProcessingInfo(result.ProcessingInfo), nil
}

// twitterProcessingInfo returns nil when the media needs no processing.
func twitterProcessingInfo(p *transfer.TwitterProcessingInfo) *ProcessingInfo {
	if p == nil {
		return nil
	}
	info := &ProcessingInfo{
		State:      p.State,
		CheckAfter: time.Duration(p.CheckAfterSecs) * time.Second,
	}
	if p.Error != nil {
		info.Error = p.Error.Message
	}
	return info
}
