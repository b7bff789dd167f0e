package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLinkedin(t *testing.T, mux *http.ServeMux) (*LinkedinService, string) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Linkedin: config.OAuthApp{ClientID: "li", ClientSecret: "shh", RedirectURI: "https://app.example/auth/linkedin/callback"},
	}
	s := NewLinkedinService(cfg,
		WithHTTPClient(srv.Client()),
		WithTimeout(time.Second),
		WithEndpoint("userinfo", srv.URL+"/userinfo"),
		WithEndpoint("assets", srv.URL+"/assets?action=registerUpload"),
		WithEndpoint("ugcPosts", srv.URL+"/ugcPosts"),
	)
	return s, srv.URL
}

func TestLinkedinAuthor(t *testing.T) {
	assert.Equal(t, "urn:li:person:abc", linkedinAuthor("abc"))
	assert.Equal(t, "urn:li:organization:9", linkedinAuthor("urn:li:organization:9"))
}

func TestLinkedinFetchProfiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer member-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"sub":"782bbtaQ","name":"Jo Doe","email":"jo@example.com"}`))
	})
	s, _ := newTestLinkedin(t, mux)

	profiles, err := s.FetchProfiles(context.Background(), &TokenSet{AccessToken: "member-token"})
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "782bbtaQ", profiles[0].PlatformAccountID)
	assert.Equal(t, "urn:li:person:782bbtaQ", profiles[0].Metadata["author_urn"])
}

func TestLinkedinUploadAndPublish(t *testing.T) {
	var uploaded []byte
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "registerUpload", r.URL.Query().Get("action"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))

		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "urn:li:person:abc", body["registerUploadRequest"]["owner"])

		_, _ = w.Write([]byte(`{"value":{"asset":"urn:li:digitalmediaAsset:C5522","uploadMechanism":{
			"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest":{"uploadUrl":"` + base + `/put","headers":{}}}}}`))
	})
	mux.HandleFunc("/put", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		uploaded, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Author          string                    `json:"author"`
			SpecificContent map[string]map[string]any `json:"specificContent"`
			Visibility      map[string]string         `json:"visibility"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "urn:li:person:abc", body.Author)
		share := body.SpecificContent["com.linkedin.ugc.ShareContent"]
		assert.Equal(t, "IMAGE", share["shareMediaCategory"])
		assert.Equal(t, "PUBLIC", body.Visibility["com.linkedin.ugc.MemberNetworkVisibility"])

		w.Header().Set("X-RestLi-Id", "urn:li:share:6844785523593134080")
		w.WriteHeader(http.StatusCreated)
	})
	s, url := newTestLinkedin(t, mux)
	base = url

	items, err := NewMediaService(nil, 1, time.Second).Prepare(&models.PublishRequest{
		MediaInline: []models.InlineMedia{{Data: base64.StdEncoding.EncodeToString(pngBytes)}},
	})
	require.NoError(t, err)

	cred := &models.Credentials{PlatformAccountID: "abc", AccessToken: "member-token"}
	ref, err := s.Upload(context.Background(), cred, items[0])
	require.NoError(t, err)
	assert.Equal(t, "urn:li:digitalmediaAsset:C5522", ref.ID)
	assert.Equal(t, pngBytes, uploaded)

	id, err := s.Publish(context.Background(), cred, "hello", []*models.MediaRef{ref})
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:6844785523593134080", id)
}

func TestLinkedinTextOnlyWithSharedOrganization(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Author          string                    `json:"author"`
			SpecificContent map[string]map[string]any `json:"specificContent"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "urn:li:organization:9", body.Author)
		assert.Equal(t, "NONE", body.SpecificContent["com.linkedin.ugc.ShareContent"]["shareMediaCategory"])
		_, _ = w.Write([]byte(`{"id":"urn:li:share:1"}`))
	})
	s, _ := newTestLinkedin(t, mux)

	id, err := s.Publish(context.Background(), &models.Credentials{PlatformAccountID: "urn:li:organization:9", AccessToken: "org", Shared: true}, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:1", id)
}
