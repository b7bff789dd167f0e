package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTwitter(t *testing.T, handler http.Handler) *TwitterService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Twitter: config.OAuthApp{ClientID: "cid", ClientSecret: "csecret", RedirectURI: "https://app.example/auth/twitter/callback"},
		TwitterShared: config.TwitterShared{
			ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessTokenSecret: "ats",
		},
	}
	s := NewTwitterService(cfg,
		WithHTTPClient(srv.Client()),
		WithTimeout(time.Second),
		WithEndpoint("token", srv.URL+"/token"),
		WithEndpoint("me", srv.URL+"/me"),
		WithEndpoint("tweets", srv.URL+"/tweets"),
		WithEndpoint("upload", srv.URL+"/upload"),
	)
	s.chunks.PollInterval = time.Millisecond
	return s
}

func TestTwitterAuthCodeURL(t *testing.T) {
	s := NewTwitterService(&config.Config{Twitter: config.OAuthApp{ClientID: "cid", RedirectURI: "https://app.example/cb"}})

	raw := s.AuthCodeURL("st4te", "verifier-123")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "twitter.com", u.Host)
	assert.Equal(t, "st4te", q.Get("state"))
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEqual(t, "verifier-123", q.Get("code_challenge"))
	assert.Contains(t, q.Get("scope"), "tweet.write")
}

func TestTwitterExchangeAndProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "verifier-123", r.PostForm.Get("code_verifier"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "cid", user)
		assert.Equal(t, "csecret", pass)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"user-at","refresh_token":"user-rt","expires_in":7200,"token_type":"bearer"}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-at", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"id":"2244994945","name":"Jo","username":"jo_dev"}}`))
	})
	s := newTestTwitter(t, mux)

	tok, err := s.Exchange(context.Background(), "the-code", "verifier-123")
	require.NoError(t, err)
	assert.Equal(t, "user-at", tok.AccessToken)
	assert.Equal(t, "user-rt", tok.RefreshToken)
	require.NotNil(t, tok.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), *tok.ExpiresAt, time.Minute)

	profiles, err := s.FetchProfiles(context.Background(), tok)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "2244994945", profiles[0].PlatformAccountID)
	assert.Equal(t, "jo_dev", profiles[0].AccountName)
	assert.Equal(t, models.AccountTypeProfile, profiles[0].AccountType)
}

func TestTwitterExchangeFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_request","error_description":"Value passed for the authorization code was invalid."}`))
	})
	s := newTestTwitter(t, mux)

	_, err := s.Exchange(context.Background(), "bad", "v")
	assert.ErrorIs(t, err, ErrTokenExchangeFailed)
}

func TestTwitterUploadAndPublish(t *testing.T) {
	var mu sync.Mutex
	var commands []string
	var initBytes string
	var appended []byte

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Bearer user-at", r.Header.Get("Authorization"))

		mu.Lock()
		defer mu.Unlock()
		cmd := r.Form.Get("command")
		commands = append(commands, cmd)

		switch cmd {
		case "INIT":
			initBytes = r.PostForm.Get("total_bytes")
			assert.Equal(t, "image/png", r.PostForm.Get("media_type"))
			assert.Equal(t, "tweet_image", r.PostForm.Get("media_category"))
			_, _ = w.Write([]byte(`{"media_id":710511363345354753,"media_id_string":"710511363345354753"}`))
		case "APPEND":
			seg, err := base64.StdEncoding.DecodeString(r.PostForm.Get("media_data"))
			require.NoError(t, err)
			appended = append(appended, seg...)
			w.WriteHeader(http.StatusNoContent)
		case "FINALIZE":
			_, _ = w.Write([]byte(`{"media_id_string":"710511363345354753"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/tweets", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["text"])
		assert.Equal(t, map[string]any{"media_ids": []any{"710511363345354753"}}, body["media"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1445880548472328192","text":"hello"}}`))
	})
	s := newTestTwitter(t, mux)

	items, err := NewMediaService(nil, 1, time.Second).Prepare(&models.PublishRequest{
		MediaInline: []models.InlineMedia{{Data: base64.StdEncoding.EncodeToString(pngBytes)}},
	})
	require.NoError(t, err)

	cred := &models.Credentials{AccessToken: "user-at"}
	ref, err := s.Upload(context.Background(), cred, items[0])
	require.NoError(t, err)
	assert.Equal(t, "710511363345354753", ref.ID)
	assert.Equal(t, []string{"INIT", "APPEND", "FINALIZE"}, commands)
	assert.Equal(t, "16", initBytes)
	assert.Equal(t, pngBytes, appended)

	id, err := s.Publish(context.Background(), cred, "hello", []*models.MediaRef{ref})
	require.NoError(t, err)
	assert.Equal(t, "1445880548472328192", id)
}

func TestTwitterVideoProcessing(t *testing.T) {
	statusCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.Form.Get("command") {
		case "INIT":
			assert.Equal(t, "tweet_video", r.PostForm.Get("media_category"))
			_, _ = w.Write([]byte(`{"media_id_string":"99"}`))
		case "APPEND":
			w.WriteHeader(http.StatusNoContent)
		case "FINALIZE":
			_, _ = w.Write([]byte(`{"media_id_string":"99","processing_info":{"state":"pending","check_after_secs":0}}`))
		case "STATUS":
			assert.Equal(t, http.MethodGet, r.Method)
			statusCalls++
			if statusCalls < 2 {
				_, _ = w.Write([]byte(`{"media_id_string":"99","processing_info":{"state":"in_progress"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"media_id_string":"99","processing_info":{"state":"succeeded"}}`))
		}
	})
	s := newTestTwitter(t, mux)

	items, err := NewMediaService(nil, 1, time.Second).Prepare(&models.PublishRequest{
		MediaInline:  []models.InlineMedia{{Data: base64.StdEncoding.EncodeToString([]byte("not really a video"))}},
		ContentTypes: []string{"video/mp4"},
	})
	require.NoError(t, err)

	ref, err := s.Upload(context.Background(), &models.Credentials{AccessToken: "at"}, items[0])
	require.NoError(t, err)
	assert.Equal(t, "99", ref.ID)
	assert.Equal(t, 2, statusCalls)
}

func TestTwitterSharedCredentialsSignWithOAuth1(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tweets", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(auth, "OAuth "), auth)
		assert.Contains(t, auth, `oauth_consumer_key="ck"`)
		assert.Contains(t, auth, `oauth_token="at"`)
		_, _ = w.Write([]byte(`{"data":{"id":"1"}}`))
	})
	s := newTestTwitter(t, mux)

	id, err := s.Publish(context.Background(), &models.Credentials{AccessToken: "at", AccessTokenSecret: "ats", Shared: true}, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "1", id)
}

func TestTwitterPublishError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tweets", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"You are not allowed to create a Tweet with duplicate content."}`))
	})
	s := newTestTwitter(t, mux)

	_, err := s.Publish(context.Background(), &models.Credentials{AccessToken: "at"}, "hi", nil)
	assert.ErrorIs(t, err, ErrUpstreamAPI)
	assert.Contains(t, err.Error(), "duplicate content")
}
