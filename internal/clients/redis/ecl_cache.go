package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/termgraph-backend/internal/platform/envutil"
	"github.com/yungbote/termgraph-backend/internal/platform/logger"
	"github.com/yungbote/termgraph-backend/internal/snomed/ecl"
)

// ECLCache keeps evaluated constraint pages in redis. Keys embed the branch
// head timepoint, so no explicit invalidation is needed; entries expire on
// their own.
type ECLCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewECLCache connects using REDIS_ADDR. A missing address is not an error,
// the caller runs without a cache.
func NewECLCache(baseLog *logger.Logger) (*ECLCache, error) {
	addr := envutil.Str("REDIS_ADDR", "")
	if addr == "" {
		return nil, nil
	}
	ttlSeconds := envutil.Int("ECL_CACHE_TTL", 600)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.Str("REDIS_PASSWORD", ""),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &ECLCache{
		log: baseLog.With("service", "ECLCache"),
		rdb: rdb,
		ttl: time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func (c *ECLCache) Get(ctx context.Context, key string) (*ecl.Page, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var page ecl.Page
	if err := json.Unmarshal(raw, &page); err != nil {
		c.log.Warn("cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return &page, true
}

func (c *ECLCache) Set(ctx context.Context, key string, page *ecl.Page) {
	raw, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *ECLCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
