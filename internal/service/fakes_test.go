package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

type fakeAccounts struct {
	mu       sync.Mutex
	nextID   int64
	rows     map[int64]*models.SocialAccount
	upserts  int
	failIDs  map[string]bool
	touched  map[int64]time.Time
	removed  []int64
	tokenSet map[int64]*models.SocialAccount
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		rows:     make(map[int64]*models.SocialAccount),
		failIDs:  make(map[string]bool),
		touched:  make(map[int64]time.Time),
		tokenSet: make(map[int64]*models.SocialAccount),
	}
}

func (f *fakeAccounts) Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.upserts++
	if f.failIDs[sa.PlatformAccountID] {
		return 0, errors.New("insert failed")
	}
	for id, row := range f.rows {
		if row.UserID == sa.UserID && row.Platform == sa.Platform && row.PlatformAccountID == sa.PlatformAccountID {
			cp := *sa
			cp.ID = id
			if cp.RefreshToken == "" {
				cp.RefreshToken = row.RefreshToken
			}
			f.rows[id] = &cp
			return id, nil
		}
	}
	f.nextID++
	cp := *sa
	cp.ID = f.nextID
	cp.LastUsedAt = time.Now()
	f.rows[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeAccounts) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeAccounts) GetLatest(ctx context.Context, userID int64, platform, preferredType string) (*models.SocialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var best *models.SocialAccount
	for _, row := range f.rows {
		if row.UserID != userID || row.Platform != platform {
			continue
		}
		if best == nil {
			best = row
			continue
		}
		rowPref, bestPref := row.AccountType == preferredType, best.AccountType == preferredType
		if rowPref != bestPref {
			if rowPref {
				best = row
			}
			continue
		}
		if row.LastUsedAt.After(best.LastUsedAt) {
			best = row
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (f *fakeAccounts) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.SocialAccount
	for _, row := range f.rows {
		if row.UserID == userID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeAccounts) ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (f *fakeAccounts) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[accountID]
	return ok && row.UserID == userID, nil
}

func (f *fakeAccounts) SetToken(ctx context.Context, id int64, sa *models.SocialAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenSet[id] = sa
	return nil
}

func (f *fakeAccounts) TouchLastUsed(ctx context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[id] = at
	if row, ok := f.rows[id]; ok && at.After(row.LastUsedAt) {
		row.LastUsedAt = at
	}
	return nil
}

func (f *fakeAccounts) Remove(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeAccounts) all() []*models.SocialAccount {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.SocialAccount, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, row)
	}
	return out
}

type fakeStates struct {
	mu   sync.Mutex
	rows map[string]*models.OAuthState
}

func newFakeStates() *fakeStates {
	return &fakeStates{rows: make(map[string]*models.OAuthState)}
}

func (f *fakeStates) Create(ctx context.Context, st *models.OAuthState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *st
	cp.CreatedAt = time.Now()
	f.rows[st.Platform+":"+st.State] = &cp
	return nil
}

func (f *fakeStates) Consume(ctx context.Context, userID int64, platform, state string) (*models.OAuthState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := platform + ":" + state
	st, ok := f.rows[key]
	if !ok || st.UserID != userID {
		return nil, nil
	}
	delete(f.rows, key)
	return st, nil
}

func (f *fakeStates) PurgeExpired(ctx context.Context) (int64, error) { return 0, nil }

// fakePlatform records calls and answers from its fields.
type fakePlatform struct {
	name        string
	pkce        bool
	constraints Constraints

	token      *TokenSet
	exchangeFn func(code, verifier string) (*TokenSet, error)
	profiles   []Profile

	uploadFn  func(item *MediaItem) (*models.MediaRef, error)
	publishFn func(cred *models.Credentials, content string, media []*models.MediaRef) (string, error)

	mu        sync.Mutex
	uploads   int
	publishes int
	revoked   []int64
}

func (p *fakePlatform) Name() string { return p.name }
func (p *fakePlatform) PKCE() bool   { return p.pkce }

func (p *fakePlatform) AuthCodeURL(state, verifier string) string {
	return fmt.Sprintf("https://%s.example/auth?state=%s&verifier=%s", p.name, state, verifier)
}

func (p *fakePlatform) Exchange(ctx context.Context, code, verifier string) (*TokenSet, error) {
	if p.exchangeFn != nil {
		return p.exchangeFn(code, verifier)
	}
	return p.token, nil
}

func (p *fakePlatform) FetchProfiles(ctx context.Context, tok *TokenSet) ([]Profile, error) {
	return p.profiles, nil
}

func (p *fakePlatform) Constraints() Constraints { return p.constraints }

func (p *fakePlatform) Upload(ctx context.Context, cred *models.Credentials, item *MediaItem) (*models.MediaRef, error) {
	p.mu.Lock()
	p.uploads++
	p.mu.Unlock()
	if p.uploadFn != nil {
		return p.uploadFn(item)
	}
	return &models.MediaRef{ID: fmt.Sprintf("%s-media-%d", p.name, item.Index)}, nil
}

func (p *fakePlatform) Publish(ctx context.Context, cred *models.Credentials, content string, media []*models.MediaRef) (string, error) {
	p.mu.Lock()
	p.publishes++
	p.mu.Unlock()
	if p.publishFn != nil {
		return p.publishFn(cred, content, media)
	}
	return p.name + "-post-1", nil
}

func (p *fakePlatform) Revoke(ctx context.Context, acc *models.SocialAccount, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, acc.ID)
	return nil
}

func (p *fakePlatform) calls() (uploads, publishes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uploads, p.publishes
}

func testCipher() *utils.Cipher {
	c, err := utils.NewCipher("test-secret")
	if err != nil {
		panic(err)
	}
	return c
}

type fakeStager struct {
	mu     sync.Mutex
	staged int
}

func (s *fakeStager) Stage(ctx context.Context, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged++
	return fmt.Sprintf("https://cdn.example/media/%d", s.staged), nil
}
