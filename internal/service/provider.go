package service

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// TokenSet is the result of a code or refresh exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	// Extra holds platform fields returned with the token, such as tiktok's open_id.
	Extra map[string]string
}

// Profile is one linkable remote account. An empty AccessToken means the
// account acts with the user token of the TokenSet it was fetched with.
type Profile struct {
	PlatformAccountID string
	AccountName       string
	AccountType       string
	AccessToken       string
	Metadata          map[string]any
}

type Provider interface {
	Name() string
	PKCE() bool
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*TokenSet, error)
	FetchProfiles(ctx context.Context, tok *TokenSet) ([]Profile, error)
}

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)
}

type Revoker interface {
	Revoke(ctx context.Context, acc *models.SocialAccount, accessToken string) error
}

// MediaKinds says which media a platform can post together.
type MediaKinds int

const (
	AnyMedia MediaKinds = iota
	ImagesOnly
	VideoOnly
	// ImagesOrOneVideo takes a single video or images only, decided by the first item.
	ImagesOrOneVideo
)

type Constraints struct {
	MaxMedia      int
	RequiresMedia bool
	Media         MediaKinds
	// AccountType is preferred when several linked accounts exist.
	AccountType string
}

type Publisher interface {
	Name() string
	Constraints() Constraints
	Upload(ctx context.Context, cred *models.Credentials, item *MediaItem) (*models.MediaRef, error)
	Publish(ctx context.Context, cred *models.Credentials, content string, media []*models.MediaRef) (string, error)
}

type Platform interface {
	Provider
	Publisher
}

type Registry struct {
	platforms map[string]Platform
}

func NewRegistry(platforms ...Platform) *Registry {
	r := &Registry{platforms: make(map[string]Platform, len(platforms))}
	for _, p := range platforms {
		r.platforms[p.Name()] = p
	}
	return r
}

func (r *Registry) Provider(name string) (Provider, bool) {
	p, ok := r.platforms[name]
	return p, ok
}

func (r *Registry) Publisher(name string) (Publisher, bool) {
	p, ok := r.platforms[name]
	return p, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// platformBase is shared by the platform services.
type platformBase struct {
	http         *upstream
	endpoints    map[string]string
	// mediaTimeout bounds a whole video transfer, which outlasts a single API call.
	mediaTimeout time.Duration
}

type Option func(*platformBase)

func WithHTTPClient(c *http.Client) Option {
	return func(b *platformBase) { b.http.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(b *platformBase) {
		if d > 0 {
			b.http.timeout = d
		}
	}
}

func WithMediaTimeout(d time.Duration) Option {
	return func(b *platformBase) {
		if d > 0 {
			b.mediaTimeout = d
		}
	}
}

// WithEndpoint overrides one of the named platform URLs.
func WithEndpoint(name, url string) Option {
	return func(b *platformBase) { b.endpoints[name] = url }
}

func newPlatformBase(defaults map[string]string, opts []Option) platformBase {
	b := platformBase{
		http:         &upstream{client: http.DefaultClient, timeout: defaultUpstreamTimeout},
		endpoints:    make(map[string]string, len(defaults)),
		mediaTimeout: defaultMediaTimeout,
	}
	for k, v := range defaults {
		b.endpoints[k] = v
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *platformBase) endpoint(name string) string {
	return b.endpoints[name]
}

func expiresAt(expiresIn int64) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	t := time.Now().Add(time.Duration(expiresIn) * time.Second)
	return &t
}
