package cache

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"anoa.com/evalhub/internal/model"
	"github.com/redis/go-redis/v9"
)

// FragmentNavbar is the fragment name of the per-user navigation bar.
const FragmentNavbar = "navbar"

// FragmentCache stores rendered template fragments in redis under keys
// derived from a fragment name and a list of key parts.
type FragmentCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewFragmentCache(rdb *redis.Client, ttl time.Duration) *FragmentCache {
	return &FragmentCache{rdb: rdb, ttl: ttl}
}

// ComputeKey derives the cache key for a fragment variant. Parts are
// url-escaped and joined before hashing so the key stays valid regardless
// of what the parts contain.
func ComputeKey(fragment string, parts ...string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = url.QueryEscape(p)
	}
	sum := md5.Sum([]byte(strings.Join(quoted, ":")))
	return fmt.Sprintf("fragment:%s:%x", fragment, sum)
}

func (c *FragmentCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *FragmentCache) Set(ctx context.Context, key, value string) error {
	return c.rdb.Set(ctx, key, value, c.ttl).Err()
}

func (c *FragmentCache) Evict(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// DeleteNavbarCacheForUsers evicts the cached navbar of every given user,
// in each locale the platform serves. Users without an email have nothing
// cached under their own key (the empty email belongs to the anonymous
// variant) and are skipped. The anonymous variant is never evicted here;
// callers that want that use DeleteAnonymousNavbarCache explicitly.
func (c *FragmentCache) DeleteNavbarCacheForUsers(ctx context.Context, users []model.UserProfile, locales []string) error {
	keys := make([]string, 0, len(users)*len(locales))
	for _, u := range users {
		if u.Email == nil {
			continue
		}
		for _, locale := range locales {
			keys = append(keys, ComputeKey(FragmentNavbar, *u.Email, locale))
		}
	}
	return c.Evict(ctx, keys...)
}

func (c *FragmentCache) DeleteAnonymousNavbarCache(ctx context.Context, locales []string) error {
	keys := make([]string, 0, len(locales))
	for _, locale := range locales {
		keys = append(keys, ComputeKey(FragmentNavbar, "", locale))
	}
	return c.Evict(ctx, keys...)
}
