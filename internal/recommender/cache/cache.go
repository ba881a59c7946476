// internal/recommender/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	apperrors "recommendation-engine/internal/common/errors"
	"recommendation-engine/internal/common/logger"
	"recommendation-engine/internal/common/metrics"
	"recommendation-engine/internal/models"
)

// ErrMiss is returned when a key is absent or its entry has expired.
var ErrMiss = errors.New("cache miss")

// Options configures a Cache. Zero values fall back to sane defaults.
type Options struct {
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
	ScanCount          int64
	WriteTimeout       time.Duration
	// Now is the clock used for entry expiry.
	Now func() time.Time
}

// Cache stores ranked lists and user feature vectors in Redis. Every entry
// carries its own creation time and TTL; an entry is served only while
// now < created_at + ttl.
type Cache struct {
	client       *redis.Client
	breaker      *gobreaker.CircuitBreaker[interface{}]
	logger       logger.Logger
	now          func() time.Time
	scanCount    int64
	writeTimeout time.Duration
}

// epochTTL bounds how long an idle user's epoch counter is kept.
const epochTTL = 24 * time.Hour

type entry struct {
	CreatedAt time.Time       `json:"created_at"`
	TTLMs     int64           `json:"ttl_ms"`
	Value     json.RawMessage `json:"value"`
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.CreatedAt.Add(time.Duration(e.TTLMs) * time.Millisecond))
}

// New wraps an existing Redis client.
func New(client *redis.Client, opts Options, log logger.Logger) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ScanCount <= 0 {
		opts.ScanCount = 100
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	return &Cache{
		client:       client,
		breaker:      newBreaker(opts.BreakerFailures, opts.BreakerOpenTimeout, log),
		logger:       log.WithFields(map[string]interface{}{"component": "cache"}),
		now:          opts.Now,
		scanCount:    opts.ScanCount,
		writeTimeout: opts.WriteTimeout,
	}
}

// ==========================
// Ranked lists
// ==========================

// GetRanked returns the cached ranked list for key, ErrMiss, or a
// CacheUnavailable error.
func (c *Cache) GetRanked(ctx context.Context, key string) ([]models.ScoredCandidate, error) {
	var list []models.ScoredCandidate
	if err := c.get(ctx, "get_ranked", key, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.ScoredCandidate{}
	}
	return list, nil
}

// PutRanked stores a ranked list, empty lists included.
func (c *Cache) PutRanked(ctx context.Context, key string, list []models.ScoredCandidate, ttl time.Duration) error {
	if list == nil {
		list = []models.ScoredCandidate{}
	}
	return c.put(ctx, "put_ranked", key, list, ttl)
}

// ==========================
// User features
// ==========================

func (c *Cache) GetUserFeatures(ctx context.Context, userID int64) (*models.UserFeatures, error) {
	var f models.UserFeatures
	if err := c.get(ctx, "get_features", FeaturesKey(userID), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// PutUserFeatures stores f unless the user was invalidated after f.Epoch was
// read. A skipped write is not an error.
func (c *Cache) PutUserFeatures(ctx context.Context, f *models.UserFeatures, ttl time.Duration) error {
	const op = "put_features"
	key := FeaturesKey(f.UserID)
	epochKey := EpochKey(f.UserID)
	payload, err := c.encode(key, f, ttl)
	if err != nil {
		return err
	}

	writeCtx, cancel := c.writeContext(ctx)
	defer cancel()

	res, err := c.execute(writeCtx, func() (interface{}, error) {
		stale := false
		err := c.client.Watch(writeCtx, func(tx *redis.Tx) error {
			current, err := tx.Get(writeCtx, epochKey).Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if current != f.Epoch {
				stale = true
				return nil
			}
			_, err = tx.TxPipelined(writeCtx, func(pipe redis.Pipeliner) error {
				pipe.Set(writeCtx, key, payload, ttl)
				return nil
			})
			return err
		}, epochKey)
		if errors.Is(err, redis.TxFailedErr) {
			return true, nil
		}
		return stale, err
	})
	if err != nil {
		metrics.CacheOperations.WithLabelValues(op, "error").Inc()
		return apperrors.NewCacheUnavailableError(op, err)
	}
	if res.(bool) {
		metrics.CacheOperations.WithLabelValues(op, "stale").Inc()
		c.logger.Debug("skipped feature write after invalidation", map[string]interface{}{
			"userId": f.UserID,
			"epoch":  f.Epoch,
		})
		return nil
	}
	metrics.CacheOperations.WithLabelValues(op, "ok").Inc()
	return nil
}

// UserEpoch returns the number of invalidations recorded for userID.
func (c *Cache) UserEpoch(ctx context.Context, userID int64) (int64, error) {
	res, err := c.execute(ctx, func() (interface{}, error) {
		return c.client.Get(ctx, EpochKey(userID)).Int64()
	})
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		metrics.CacheOperations.WithLabelValues("get_epoch", "error").Inc()
		return 0, apperrors.NewCacheUnavailableError("get_epoch", err)
	}
	return res.(int64), nil
}

// ==========================
// Invalidation
// ==========================

// InvalidateUser removes every ranked list and the feature vector of userID
// and bumps the user's epoch. It returns the number of keys deleted. Deleting
// nothing is not an error. It talks to Redis directly so an open breaker
// never drops an invalidation.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) (int, error) {
	ctx, cancel := c.writeContext(ctx)
	defer cancel()

	keys := []string{FeaturesKey(userID)}
	iter := c.client.Scan(ctx, 0, rankedPattern(userID), c.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		metrics.CacheOperations.WithLabelValues("invalidate", "error").Inc()
		return 0, apperrors.NewCacheUnavailableError("invalidate", err)
	}

	var del *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, EpochKey(userID))
		pipe.Expire(ctx, EpochKey(userID), epochTTL)
		del = pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		metrics.CacheOperations.WithLabelValues("invalidate", "error").Inc()
		return 0, apperrors.NewCacheUnavailableError("invalidate", err)
	}

	deleted := int(del.Val())
	metrics.CacheOperations.WithLabelValues("invalidate", "ok").Inc()
	c.logger.Debug("invalidated user cache", map[string]interface{}{
		"userId":  userID,
		"deleted": deleted,
	})
	return deleted, nil
}

// Ping checks the backend directly, bypassing the breaker.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return apperrors.NewCacheUnavailableError("ping", err)
	}
	return nil
}

// ==========================
// Internals
// ==========================

// execute runs fn through the breaker. Errors seen after ctx is done are the
// caller's own cancellation and do not count against the backend.
func (c *Cache) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	return c.breaker.Execute(func() (interface{}, error) {
		res, err := fn()
		if err != nil && ctx.Err() != nil {
			return res, callerDoneError{err: err}
		}
		return res, err
	})
}

func (c *Cache) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	// Writes complete even when the request that triggered them is cancelled.
	return context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
}

func (c *Cache) get(ctx context.Context, op, key string, dst interface{}) error {
	res, err := c.execute(ctx, func() (interface{}, error) {
		return c.client.Get(ctx, key).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		metrics.CacheOperations.WithLabelValues(op, "miss").Inc()
		return ErrMiss
	}
	if err != nil {
		metrics.CacheOperations.WithLabelValues(op, "error").Inc()
		return apperrors.NewCacheUnavailableError(op, err)
	}

	raw := res.([]byte)
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("discarding undecodable cache entry", map[string]interface{}{
			"key":   key,
			"error": err,
		})
		c.evict(ctx, key, raw)
		metrics.CacheOperations.WithLabelValues(op, "miss").Inc()
		return ErrMiss
	}

	if e.expired(c.now()) {
		c.evict(ctx, key, raw)
		metrics.CacheOperations.WithLabelValues(op, "expired").Inc()
		return ErrMiss
	}

	if err := json.Unmarshal(e.Value, dst); err != nil {
		c.logger.Warn("discarding cache entry with unexpected shape", map[string]interface{}{
			"key":   key,
			"error": err,
		})
		c.evict(ctx, key, raw)
		metrics.CacheOperations.WithLabelValues(op, "miss").Inc()
		return ErrMiss
	}

	metrics.CacheOperations.WithLabelValues(op, "hit").Inc()
	return nil
}

func (c *Cache) encode(key string, v interface{}, ttl time.Duration) ([]byte, error) {
	if ttl <= 0 {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("cache ttl must be positive, got %s", ttl))
	}

	value, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Normalize(fmt.Errorf("encode %s: %w", key, err))
	}
	payload, err := json.Marshal(entry{
		CreatedAt: c.now().UTC(),
		TTLMs:     ttl.Milliseconds(),
		Value:     value,
	})
	if err != nil {
		return nil, apperrors.Normalize(fmt.Errorf("encode envelope %s: %w", key, err))
	}
	return payload, nil
}

func (c *Cache) put(ctx context.Context, op, key string, v interface{}, ttl time.Duration) error {
	payload, err := c.encode(key, v, ttl)
	if err != nil {
		return err
	}

	writeCtx, cancel := c.writeContext(ctx)
	defer cancel()

	_, err = c.execute(writeCtx, func() (interface{}, error) {
		return nil, c.client.Set(writeCtx, key, payload, ttl).Err()
	})
	if err != nil {
		metrics.CacheOperations.WithLabelValues(op, "error").Inc()
		return apperrors.NewCacheUnavailableError(op, err)
	}
	metrics.CacheOperations.WithLabelValues(op, "ok").Inc()
	return nil
}

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// evict drops key if it still holds the bytes that were read, so a fresh
// entry written in between survives.
func (c *Cache) evict(ctx context.Context, key string, raw []byte) {
	ctx, cancel := c.writeContext(ctx)
	defer cancel()

	if err := compareAndDelete.Run(ctx, c.client, []string{key}, raw).Err(); err != nil {
		c.logger.Debug("failed to evict stale cache entry", map[string]interface{}{
			"key":   key,
			"error": err,
		})
	}
}
