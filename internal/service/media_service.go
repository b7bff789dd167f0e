package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/h2non/filetype"
	"github.com/maheshrc27/crosspost/internal/models"
	"golang.org/x/sync/errgroup"
)

// MediaItem is one media entry of a publish request. Bytes and hosted URLs
// are resolved at most once and shared by every platform.
type MediaItem struct {
	Index int
	URL   string

	hint   string
	inline []byte

	fetcher *upstream
	stager  ObjectStager

	loadOnce sync.Once
	data     []byte
	loadErr  error

	stageOnce sync.Once
	publicURL string
	stageErr  error
}

func (m *MediaItem) Inline() bool {
	return m.inline != nil
}

func (m *MediaItem) Bytes(ctx context.Context) ([]byte, error) {
	m.loadOnce.Do(func() {
		if m.inline != nil {
			m.data = m.inline
			return
		}
		if m.fetcher == nil {
			m.loadErr = newError(ErrConfiguration, "media fetcher is not configured")
			return
		}
		resp, err := m.fetcher.do(ctx, nil, "fetch media", true, func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
		})
		if err != nil {
			m.loadErr = err
			return
		}
		if len(resp.Body) == 0 {
			m.loadErr = newError(ErrMediaUploadFailed, "media %d is empty", m.Index)
			return
		}
		m.data = resp.Body
	})
	return m.data, m.loadErr
}

// ContentType prefers the caller's hint, then the URL extension, then sniffing the bytes.
func (m *MediaItem) ContentType(ctx context.Context) string {
	if m.hint != "" {
		return m.hint
	}
	if m.URL != "" {
		if u, err := url.Parse(m.URL); err == nil {
			ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
			if t := filetype.GetType(ext); t != filetype.Unknown {
				return t.MIME.Value
			}
		}
	}
	data, err := m.Bytes(ctx)
	if err == nil {
		if t, err := filetype.Match(data); err == nil && t != filetype.Unknown {
			return t.MIME.Value
		}
	}
	return "application/octet-stream"
}

func (m *MediaItem) IsVideo(ctx context.Context) bool {
	return strings.HasPrefix(m.ContentType(ctx), "video/")
}

// PublicURL returns a URL the platform can pull from, staging inline media to object storage.
func (m *MediaItem) PublicURL(ctx context.Context) (string, error) {
	if m.URL != "" {
		return m.URL, nil
	}
	m.stageOnce.Do(func() {
		if m.stager == nil {
			m.stageErr = newError(ErrConfiguration, "object storage is not configured for inline media")
			return
		}
		m.publicURL, m.stageErr = m.stager.Stage(ctx, m.inline, m.ContentType(ctx))
	})
	return m.publicURL, m.stageErr
}

type MediaService struct {
	http        *upstream
	stager      ObjectStager
	concurrency int
}

// NewMediaService accepts a nil stager; inline media then only reaches
// platforms that take raw bytes.
func NewMediaService(stager ObjectStager, concurrency int, timeout time.Duration) *MediaService {
	if concurrency <= 0 {
		concurrency = 4
	}
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	return &MediaService{
		http:        &upstream{client: http.DefaultClient, timeout: timeout},
		stager:      stager,
		concurrency: concurrency,
	}
}

// Prepare validates the media of req and returns them in request order, URLs first.
func (s *MediaService) Prepare(req *models.PublishRequest) ([]*MediaItem, error) {
	items := make([]*MediaItem, 0, req.MediaCount())

	for _, raw := range req.MediaURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, newError(ErrInvalidRequest, "invalid media url: %q", raw)
		}
		items = append(items, &MediaItem{Index: len(items), URL: raw})
	}

	for i, in := range req.MediaInline {
		data, hint, err := decodeInline(in)
		if err != nil {
			return nil, &Error{Kind: ErrInvalidRequest, Message: fmt.Sprintf("media_inline[%d] is not valid %s", i, encodingName(in.Encoding)), Err: err}
		}
		if len(data) == 0 {
			return nil, newError(ErrInvalidRequest, "media_inline[%d] is empty", i)
		}
		items = append(items, &MediaItem{Index: len(items), inline: data, hint: hint})
	}

	for i, ct := range req.ContentTypes {
		if i < len(items) && items[i].hint == "" {
			items[i].hint = strings.TrimSpace(ct)
		}
	}

	for _, item := range items {
		item.fetcher = s.http
		item.stager = s.stager
	}

	return items, nil
}

func encodingName(encoding string) string {
	if encoding == "" {
		return "base64"
	}
	return encoding
}

// decodeInline accepts plain or data-URI base64 payloads.
func decodeInline(in models.InlineMedia) ([]byte, string, error) {
	data := strings.TrimSpace(in.Data)
	var hint string
	if strings.HasPrefix(data, "data:") {
		header, payload, ok := strings.Cut(data, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data uri")
		}
		hint = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		data = payload
	}

	switch strings.ToLower(in.Encoding) {
	case "", "base64":
		if strings.HasSuffix(data, "=") {
			b, err := base64.StdEncoding.DecodeString(data)
			return b, hint, err
		}
		b, err := base64.RawStdEncoding.DecodeString(data)
		return b, hint, err
	case "base64url":
		if strings.HasSuffix(data, "=") {
			b, err := base64.URLEncoding.DecodeString(data)
			return b, hint, err
		}
		b, err := base64.RawURLEncoding.DecodeString(data)
		return b, hint, err
	default:
		return nil, "", fmt.Errorf("unsupported encoding %q", in.Encoding)
	}
}

func mediaKind(contentType string) MediaKinds {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return ImagesOnly
	case strings.HasPrefix(contentType, "video/"):
		return VideoOnly
	}
	return AnyMedia
}

// selectMedia drops the items a platform cannot post together, then the
// items over its maximum. Every drop produces a warning.
func selectMedia(ctx context.Context, name string, c Constraints, items []*MediaItem) ([]*MediaItem, []string) {
	var warnings []string
	limit := c.MaxMedia

	if c.Media != AnyMedia {
		mode := c.Media
		kept := make([]*MediaItem, 0, len(items))
		for _, item := range items {
			contentType := item.ContentType(ctx)
			kind := mediaKind(contentType)
			if mode == ImagesOrOneVideo && kind != AnyMedia {
				mode = kind
				if kind == VideoOnly {
					limit = 1
				}
			}
			if kind != AnyMedia && kind == mode {
				kept = append(kept, item)
				continue
			}

			var reason string
			switch c.Media {
			case ImagesOnly:
				reason = "accepts images only"
			case VideoOnly:
				reason = "accepts video only"
			default:
				reason = "cannot mix images and video"
			}
			warnings = append(warnings, fmt.Sprintf("media %d dropped: %s %s, got %s", item.Index, name, reason, contentType))
		}
		items = kept
	}

	if limit > 0 && len(items) > limit {
		warnings = append(warnings, fmt.Sprintf("%s accepts at most %d media, dropped %d", name, limit, len(items)-limit))
		items = items[:limit]
	}
	return items, warnings
}

// UploadAll uploads items for one platform concurrently. Items the platform
// cannot take are dropped and failed items are skipped; both produce warnings.
func (s *MediaService) UploadAll(ctx context.Context, pub Publisher, cred *models.Credentials, items []*MediaItem) ([]*models.MediaRef, []string, error) {
	c := pub.Constraints()

	requested := len(items)
	items, warnings := selectMedia(ctx, pub.Name(), c, items)
	if len(items) == 0 {
		if c.RequiresMedia && requested > 0 {
			return nil, warnings, newError(ErrMediaUploadFailed, "%s cannot post any of the supplied media", pub.Name())
		}
		return nil, warnings, nil
	}

	refs := make([]*models.MediaRef, len(items))
	errs := make([]error, len(items))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, item := range items {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("panic: %v", r)
				}
			}()
			refs[i], errs[i] = pub.Upload(ctx, cred, item)
			return nil
		})
	}
	_ = g.Wait()

	var uploaded []*models.MediaRef
	var firstErr error
	for i, err := range errs {
		if err != nil {
			slog.Error("media upload failed", "platform", pub.Name(), "index", items[i].Index, "error", err)
			warnings = append(warnings, fmt.Sprintf("media %d not uploaded: %v", items[i].Index, err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if refs[i] != nil {
			uploaded = append(uploaded, refs[i])
		}
	}

	if c.RequiresMedia && len(uploaded) == 0 {
		return nil, warnings, &Error{Kind: ErrMediaUploadFailed, Message: fmt.Sprintf("%s requires media but none could be uploaded", pub.Name()), Err: firstErr}
	}

	return uploaded, warnings, nil
}

const (
	ProcessingPending    = "pending"
	ProcessingInProgress = "in_progress"
	ProcessingSucceeded  = "succeeded"
	ProcessingFailed     = "failed"
)

type ProcessingInfo struct {
	State      string
	CheckAfter time.Duration
	Error      string
}

func (p *ProcessingInfo) pending() bool {
	return p != nil && (p.State == ProcessingPending || p.State == ProcessingInProgress)
}

// ChunkedTransport is the platform side of an INIT, APPEND, FINALIZE upload.
type ChunkedTransport interface {
	Init(ctx context.Context, totalBytes int64, contentType string) (string, error)
	Append(ctx context.Context, mediaID string, index int, segment string) error
	Finalize(ctx context.Context, mediaID string) (*ProcessingInfo, error)
	Status(ctx context.Context, mediaID string) (*ProcessingInfo, error)
}

type ChunkedUploader struct {
	SegmentSize  int
	PollInterval time.Duration
	MaxPolls     int
}

var defaultChunkedUploader = ChunkedUploader{
	SegmentSize:  1 << 20,
	PollInterval: 2 * time.Second,
	MaxPolls:     30,
}

// Upload sends data in base64 segments. Any failure stops the session; a
// failed APPEND never reaches FINALIZE.
func (u ChunkedUploader) Upload(ctx context.Context, t ChunkedTransport, data []byte, contentType string) (*models.MediaUploadSession, error) {
	session := &models.MediaUploadSession{
		TotalBytes:  int64(len(data)),
		ContentType: contentType,
	}
	if len(data) == 0 {
		session.Phase = models.PhaseFailed
		return session, newError(ErrMediaUploadFailed, "media is empty")
	}

	fail := func(step string, err error) (*models.MediaUploadSession, error) {
		session.Phase = models.PhaseFailed
		slog.Error("chunked upload failed", "step", step, "media_id", session.MediaID, "error", err)
		return session, &Error{Kind: ErrMediaUploadFailed, Message: step + " failed", Err: err}
	}

	mediaID, err := t.Init(ctx, session.TotalBytes, contentType)
	if err != nil {
		return fail("INIT", err)
	}
	session.MediaID = mediaID
	session.Phase = models.PhaseInitialized

	segmentSize := u.SegmentSize
	if segmentSize <= 0 {
		segmentSize = defaultChunkedUploader.SegmentSize
	}

	for index, offset := 0, 0; offset < len(data); index++ {
		end := min(offset+segmentSize, len(data))
		session.Phase = models.PhaseAppending
		if err := t.Append(ctx, mediaID, index, base64.StdEncoding.EncodeToString(data[offset:end])); err != nil {
			return fail(fmt.Sprintf("APPEND segment %d", index), err)
		}
		session.SegmentsSent++
		offset = end
	}

	info, err := t.Finalize(ctx, mediaID)
	if err != nil {
		return fail("FINALIZE", err)
	}
	session.Phase = models.PhaseFinalized

	for polls := 0; info.pending(); polls++ {
		if polls >= u.MaxPolls {
			return fail("STATUS", fmt.Errorf("processing still %s after %d checks", info.State, polls))
		}
		wait := info.CheckAfter
		if wait <= 0 {
			wait = u.PollInterval
		}
		select {
		case <-ctx.Done():
			return fail("STATUS", ctx.Err())
		case <-time.After(wait):
		}
		if info, err = t.Status(ctx, mediaID); err != nil {
			return fail("STATUS", err)
		}
	}

	if info != nil && info.State == ProcessingFailed {
		return fail("processing", fmt.Errorf("%s", info.Error))
	}

	return session, nil
}
