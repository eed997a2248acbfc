package report

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// CounterCache reads the per-day scan tallies the worker increments in
// redis: a day-total key plus one key per class. Keys expire after two
// days, so a cold or unreachable cache simply reports a miss.
type CounterCache struct {
	client *redis.Client
	prefix string
}

// NewCounterCache wraps the redis client the worker writes through.
func NewCounterCache(client *redis.Client) *CounterCache {
	return &CounterCache{client: client, prefix: "absensi:count:"}
}

// TodayCount returns the warmed tally for a day. A nil classes slice reads
// the day total; a restricted scope sums its per-class keys. Every key
// absent counts as a miss, since an unwarmed day is indistinguishable from
// a day with no scans.
func (c *CounterCache) TodayCount(ctx context.Context, day string, classes []string) (int, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}

	if classes == nil {
		n, err := c.client.Get(ctx, c.prefix+day).Int()
		if err != nil {
			return 0, false
		}
		return n, true
	}

	keys := make([]string, len(classes))
	for i, class := range classes {
		keys[i] = c.prefix + day + ":" + class
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, false
	}

	total, hit := 0, false
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		total += n
		hit = true
	}
	return total, hit
}
