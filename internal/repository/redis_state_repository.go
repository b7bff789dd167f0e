package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "oauth_state:"

type redisStateRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStateRepository keeps states in Redis; expiry is left to key TTLs.
func NewRedisStateRepository(rdb *redis.Client, ttl time.Duration) OAuthStateRepository {
	return &redisStateRepository{rdb: rdb, ttl: ttl}
}

// stateKey includes the user so one user cannot consume or burn another's state.
func stateKey(userID int64, platform, state string) string {
	return stateKeyPrefix + strconv.FormatInt(userID, 10) + ":" + platform + ":" + state
}

func (r *redisStateRepository) Create(ctx context.Context, st *models.OAuthState) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}

	value, err := json.Marshal(st)
	if err != nil {
		return err
	}

	ok, err := r.rdb.SetNX(ctx, stateKey(st.UserID, st.Platform, st.State), value, r.ttl).Result()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if !ok {
		return errors.New("oauth state already exists")
	}
	return nil
}

func (r *redisStateRepository) Consume(ctx context.Context, userID int64, platform, state string) (*models.OAuthState, error) {
	value, err := r.rdb.GetDel(ctx, stateKey(userID, platform, state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	var st models.OAuthState
	if err := json.Unmarshal(value, &st); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &st, nil
}

func (r *redisStateRepository) PurgeExpired(ctx context.Context) (int64, error) {
	return 0, nil
}
