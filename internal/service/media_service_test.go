package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestPrepare(t *testing.T) {
	s := NewMediaService(nil, 2, time.Second)

	t.Run("urls then inline in request order", func(t *testing.T) {
		items, err := s.Prepare(&models.PublishRequest{
			MediaURLs: []string{"https://cdn.example/a.jpg", "https://cdn.example/b.mp4"},
			MediaInline: []models.InlineMedia{
				{Data: base64.StdEncoding.EncodeToString(pngBytes)},
			},
		})
		require.NoError(t, err)
		require.Len(t, items, 3)

		ctx := context.Background()
		assert.Equal(t, 0, items[0].Index)
		assert.Equal(t, "image/jpeg", items[0].ContentType(ctx))
		assert.True(t, items[1].IsVideo(ctx))
		assert.True(t, items[2].Inline())
		assert.Equal(t, "image/png", items[2].ContentType(ctx))

		data, err := items[2].Bytes(ctx)
		require.NoError(t, err)
		assert.Equal(t, pngBytes, data)
	})

	t.Run("base64url and data uri", func(t *testing.T) {
		items, err := s.Prepare(&models.PublishRequest{
			MediaInline: []models.InlineMedia{
				{Data: base64.RawURLEncoding.EncodeToString([]byte{0xfb, 0xff, 0xfe}), Encoding: "base64url"},
				{Data: "data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("GIF89a"))},
			},
		})
		require.NoError(t, err)
		require.Len(t, items, 2)

		data, err := items[0].Bytes(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []byte{0xfb, 0xff, 0xfe}, data)
		assert.Equal(t, "image/gif", items[1].ContentType(context.Background()))
	})

	t.Run("content type hint wins", func(t *testing.T) {
		items, err := s.Prepare(&models.PublishRequest{
			MediaURLs:    []string{"https://cdn.example/download"},
			ContentTypes: []string{"video/mp4"},
		})
		require.NoError(t, err)
		assert.True(t, items[0].IsVideo(context.Background()))
	})

	invalid := []struct {
		name string
		req  *models.PublishRequest
	}{
		{"relative url", &models.PublishRequest{MediaURLs: []string{"/tmp/a.jpg"}}},
		{"ftp url", &models.PublishRequest{MediaURLs: []string{"ftp://cdn.example/a.jpg"}}},
		{"bad base64", &models.PublishRequest{MediaInline: []models.InlineMedia{{Data: "%%%not base64"}}}},
		{"unknown encoding", &models.PublishRequest{MediaInline: []models.InlineMedia{{Data: "aGk=", Encoding: "hex"}}}},
		{"empty inline", &models.PublishRequest{MediaInline: []models.InlineMedia{{Data: ""}}}},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Prepare(tc.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestMediaItemFetchesOnce(t *testing.T) {
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		_, _ = w.Write(pngBytes)
	}))
	defer srv.Close()

	s := NewMediaService(nil, 2, time.Second)
	items, err := s.Prepare(&models.PublishRequest{MediaURLs: []string{srv.URL + "/image"}})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := items[0].Bytes(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, pngBytes, data)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, hits)
	assert.Equal(t, "image/png", items[0].ContentType(context.Background()))
}

func TestPublicURL(t *testing.T) {
	ctx := context.Background()
	stager := &fakeStager{}
	s := NewMediaService(stager, 2, time.Second)

	items, err := s.Prepare(&models.PublishRequest{
		MediaURLs:   []string{"https://cdn.example/a.jpg"},
		MediaInline: []models.InlineMedia{{Data: base64.StdEncoding.EncodeToString(pngBytes)}},
	})
	require.NoError(t, err)

	u, err := items[0].PublicURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.jpg", u)

	first, err := items[1].PublicURL(ctx)
	require.NoError(t, err)
	second, err := items[1].PublicURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, stager.staged)

	noStager := NewMediaService(nil, 2, time.Second)
	items, err = noStager.Prepare(&models.PublishRequest{MediaInline: []models.InlineMedia{{Data: base64.StdEncoding.EncodeToString(pngBytes)}}})
	require.NoError(t, err)
	_, err = items[0].PublicURL(ctx)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func inlineItems(t *testing.T, s *MediaService, n int) []*MediaItem {
	t.Helper()
	req := &models.PublishRequest{}
	for i := 0; i < n; i++ {
		req.MediaInline = append(req.MediaInline, models.InlineMedia{Data: base64.StdEncoding.EncodeToString(pngBytes)})
	}
	items, err := s.Prepare(req)
	require.NoError(t, err)
	return items
}

func TestUploadAll(t *testing.T) {
	ctx := context.Background()
	s := NewMediaService(nil, 3, time.Second)
	cred := &models.Credentials{AccessToken: "tok"}

	t.Run("truncates to platform maximum", func(t *testing.T) {
		pub := &fakePlatform{name: "twitter", constraints: Constraints{MaxMedia: 4}}

		refs, warnings, err := s.UploadAll(ctx, pub, cred, inlineItems(t, s, 6))
		require.NoError(t, err)
		require.Len(t, refs, 4)
		for i, ref := range refs {
			assert.Equal(t, fmt.Sprintf("twitter-media-%d", i), ref.ID)
		}
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "dropped 2")
		uploads, _ := pub.calls()
		assert.Equal(t, 4, uploads)
	})

	t.Run("failed items become warnings", func(t *testing.T) {
		pub := &fakePlatform{
			name:        "linkedin",
			constraints: Constraints{MaxMedia: 9},
			uploadFn: func(item *MediaItem) (*models.MediaRef, error) {
				if item.Index == 1 {
					return nil, errors.New("register upload failed")
				}
				return &models.MediaRef{ID: fmt.Sprint(item.Index)}, nil
			},
		}

		refs, warnings, err := s.UploadAll(ctx, pub, cred, inlineItems(t, s, 3))
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, "0", refs[0].ID)
		assert.Equal(t, "2", refs[1].ID)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0], "register upload failed")
	})

	t.Run("panicking upload is contained", func(t *testing.T) {
		pub := &fakePlatform{
			name: "facebook",
			uploadFn: func(item *MediaItem) (*models.MediaRef, error) {
				panic("nil map")
			},
		}

		refs, warnings, err := s.UploadAll(ctx, pub, cred, inlineItems(t, s, 1))
		require.NoError(t, err)
		assert.Empty(t, refs)
		assert.Len(t, warnings, 1)
	})

	t.Run("required media with nothing uploaded", func(t *testing.T) {
		pub := &fakePlatform{
			name:        "instagram",
			constraints: Constraints{MaxMedia: 10, RequiresMedia: true},
			uploadFn: func(item *MediaItem) (*models.MediaRef, error) {
				return nil, errors.New("container rejected")
			},
		}

		_, warnings, err := s.UploadAll(ctx, pub, cred, inlineItems(t, s, 2))
		assert.ErrorIs(t, err, ErrMediaUploadFailed)
		assert.Len(t, warnings, 2)
	})

	t.Run("no items", func(t *testing.T) {
		pub := &fakePlatform{name: "twitter"}
		refs, warnings, err := s.UploadAll(ctx, pub, cred, nil)
		require.NoError(t, err)
		assert.Nil(t, refs)
		assert.Nil(t, warnings)
	})
}

func urlItems(t *testing.T, s *MediaService, urls ...string) []*MediaItem {
	t.Helper()
	items, err := s.Prepare(&models.PublishRequest{MediaURLs: urls})
	require.NoError(t, err)
	return items
}

func TestUploadAllSelectsMediaKinds(t *testing.T) {
	ctx := context.Background()
	s := NewMediaService(nil, 3, time.Second)
	cred := &models.Credentials{AccessToken: "tok"}

	t.Run("tiktok posts one video", func(t *testing.T) {
		items := urlItems(t, s, "https://cdn.example/a.mp4", "https://cdn.example/b.mp4", "https://cdn.example/c.jpg")

		refs, warnings, err := s.UploadAll(ctx, NewTiktokService(&config.Config{}), cred, items)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, "https://cdn.example/a.mp4", refs[0].URL)
		assert.Equal(t, []string{
			"media 2 dropped: tiktok cannot mix images and video, got image/jpeg",
			"tiktok accepts at most 1 media, dropped 1",
		}, warnings)
	})

	t.Run("tiktok photo post drops video", func(t *testing.T) {
		items := urlItems(t, s, "https://cdn.example/1.jpg", "https://cdn.example/v.mp4", "https://cdn.example/2.png")

		refs, warnings, err := s.UploadAll(ctx, NewTiktokService(&config.Config{}), cred, items)
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, "https://cdn.example/1.jpg", refs[0].URL)
		assert.Equal(t, "https://cdn.example/2.png", refs[1].URL)
		assert.Equal(t, []string{"media 1 dropped: tiktok cannot mix images and video, got video/mp4"}, warnings)
	})

	t.Run("youtube skips a leading image", func(t *testing.T) {
		items := urlItems(t, s, "https://cdn.example/cover.jpg", "https://cdn.example/clip.mp4")

		refs, warnings, err := s.UploadAll(ctx, NewYoutubeService(&config.Config{}), cred, items)
		require.NoError(t, err)
		require.Len(t, refs, 1)
		assert.Equal(t, "https://cdn.example/clip.mp4", refs[0].URL)
		assert.Equal(t, []string{"media 0 dropped: youtube accepts video only, got image/jpeg"}, warnings)
	})

	t.Run("youtube with no video fails", func(t *testing.T) {
		items := urlItems(t, s, "https://cdn.example/cover.jpg")

		refs, warnings, err := s.UploadAll(ctx, NewYoutubeService(&config.Config{}), cred, items)
		assert.ErrorIs(t, err, ErrMediaUploadFailed)
		assert.Nil(t, refs)
		assert.Len(t, warnings, 1)
	})

	t.Run("images only platform drops video before counting", func(t *testing.T) {
		pub := &fakePlatform{name: "facebook", constraints: Constraints{MaxMedia: 2, Media: ImagesOnly}}
		items := urlItems(t, s, "https://cdn.example/v.mp4", "https://cdn.example/1.jpg", "https://cdn.example/2.jpg")

		refs, warnings, err := s.UploadAll(ctx, pub, cred, items)
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, "facebook-media-1", refs[0].ID)
		assert.Equal(t, "facebook-media-2", refs[1].ID)
		assert.Equal(t, []string{"media 0 dropped: facebook accepts images only, got video/mp4"}, warnings)
	})
}

type fakeChunkedTransport struct {
	initSize    int64
	appended    []string
	finalized   bool
	failAppend  int
	finalizeOut *ProcessingInfo
	statuses    []*ProcessingInfo
	statusCalls int
}

func (f *fakeChunkedTransport) Init(ctx context.Context, totalBytes int64, contentType string) (string, error) {
	f.initSize = totalBytes
	return "media-1", nil
}

func (f *fakeChunkedTransport) Append(ctx context.Context, mediaID string, index int, segment string) error {
	if f.failAppend >= 0 && index == f.failAppend {
		return errors.New("segment rejected")
	}
	f.appended = append(f.appended, segment)
	return nil
}

func (f *fakeChunkedTransport) Finalize(ctx context.Context, mediaID string) (*ProcessingInfo, error) {
	f.finalized = true
	return f.finalizeOut, nil
}

func (f *fakeChunkedTransport) Status(ctx context.Context, mediaID string) (*ProcessingInfo, error) {
	info := f.statuses[min(f.statusCalls, len(f.statuses)-1)]
	f.statusCalls++
	return info, nil
}

func TestChunkedUpload(t *testing.T) {
	ctx := context.Background()
	data := make([]byte, 2500)
	for i := range data {
		data[i] = byte(i)
	}
	u := ChunkedUploader{SegmentSize: 1000, PollInterval: time.Millisecond, MaxPolls: 3}

	t.Run("init size is the decoded size", func(t *testing.T) {
		tr := &fakeChunkedTransport{failAppend: -1}

		session, err := u.Upload(ctx, tr, data, "video/mp4")
		require.NoError(t, err)
		assert.EqualValues(t, len(data), tr.initSize)
		assert.Equal(t, 3, session.SegmentsSent)
		assert.Equal(t, models.PhaseFinalized, session.Phase)
		assert.Equal(t, "media-1", session.MediaID)

		var sent []byte
		for _, seg := range tr.appended {
			b, err := base64.StdEncoding.DecodeString(seg)
			require.NoError(t, err)
			sent = append(sent, b...)
		}
		assert.Equal(t, data, sent)
		assert.EqualValues(t, len(sent), tr.initSize)
	})

	t.Run("failed append never finalizes", func(t *testing.T) {
		tr := &fakeChunkedTransport{failAppend: 1}

		session, err := u.Upload(ctx, tr, data, "video/mp4")
		assert.ErrorIs(t, err, ErrMediaUploadFailed)
		assert.False(t, tr.finalized)
		assert.Equal(t, models.PhaseFailed, session.Phase)
		assert.Equal(t, 1, session.SegmentsSent)
	})

	t.Run("polls until processing succeeds", func(t *testing.T) {
		tr := &fakeChunkedTransport{
			failAppend:  -1,
			finalizeOut: &ProcessingInfo{State: ProcessingPending},
			statuses: []*ProcessingInfo{
				{State: ProcessingInProgress},
				{State: ProcessingSucceeded},
			},
		}

		_, err := u.Upload(ctx, tr, data, "video/mp4")
		require.NoError(t, err)
		assert.Equal(t, 2, tr.statusCalls)
	})

	t.Run("poll is bounded", func(t *testing.T) {
		tr := &fakeChunkedTransport{
			failAppend:  -1,
			finalizeOut: &ProcessingInfo{State: ProcessingPending},
			statuses:    []*ProcessingInfo{{State: ProcessingInProgress}},
		}

		_, err := u.Upload(ctx, tr, data, "video/mp4")
		assert.ErrorIs(t, err, ErrMediaUploadFailed)
		assert.Equal(t, 3, tr.statusCalls)
	})

	t.Run("processing failure", func(t *testing.T) {
		tr := &fakeChunkedTransport{
			failAppend:  -1,
			finalizeOut: &ProcessingInfo{State: ProcessingPending},
			statuses:    []*ProcessingInfo{{State: ProcessingFailed, Error: "unsupported codec"}},
		}

		_, err := u.Upload(ctx, tr, data, "video/mp4")
		assert.ErrorIs(t, err, ErrMediaUploadFailed)
		assert.Contains(t, err.Error(), "unsupported codec")
	})

	t.Run("empty data", func(t *testing.T) {
		tr := &fakeChunkedTransport{failAppend: -1}
		_, err := u.Upload(ctx, tr, nil, "video/mp4")
		assert.ErrorIs(t, err, ErrMediaUploadFailed)
		assert.Zero(t, tr.initSize)
	})
}
