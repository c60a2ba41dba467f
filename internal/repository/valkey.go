package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"
)

// Cache entry layout: one hash per short code at url:<code> with the
// fields below. An empty qr_code value means "not yet generated"; an
// absent field means "not cached at all".
const (
	urlKeyPrefix = "url:"

	FieldLongURL = "long_url"
	FieldQRCode  = "qr_code"
)

// URLKey returns the cache key for a short code.
func URLKey(shortCode string) string {
	return urlKeyPrefix + shortCode
}

// ValkeyCache is the best-effort cache layer. Every failure is logged and
// converted to a miss or a no-op; no caller may depend on it for
// correctness.
type ValkeyCache struct {
	client valkey.Client
	l      *slog.Logger
}

func NewValkeyCache(client valkey.Client, l *slog.Logger) *ValkeyCache {
	return &ValkeyCache{client: client, l: l}
}

// HGet returns one hash field, or false when the field is absent, the key
// does not exist, or the cache errored. An existing field holding the
// empty string is a hit.
func (c *ValkeyCache) HGet(ctx context.Context, key, field string) (string, bool) {
	v, err := c.client.Do(ctx, c.client.B().Hget().Key(key).Field(field).Build()).ToString()
	if errors.Is(err, valkey.Nil) {
		return "", false
	}
	if err != nil {
		c.l.Error("cache: failed to get hash field",
			slog.String("key", key), slog.String("field", field), slog.Any("error", err))
		return "", false
	}
	return v, true
}

// HSetWithTTL writes all fields and re-arms the TTL as one MULTI/EXEC on a
// dedicated connection, so a concurrent reader never observes a partial
// entry.
func (c *ValkeyCache) HSetWithTTL(ctx context.Context, key string, fields map[string]string, ttl time.Duration) {
	err := c.client.Dedicated(func(dc valkey.DedicatedClient) error {
		hset := dc.B().Hset().Key(key).FieldValue()
		for f, v := range fields {
			hset = hset.FieldValue(f, v)
		}

		cmds := []valkey.Completed{
			dc.B().Multi().Build(),
			hset.Build(),
			dc.B().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build(),
			dc.B().Exec().Build(),
		}
		for _, resp := range dc.DoMulti(ctx, cmds...) {
			if err := resp.Error(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.l.Error("cache: failed to write hash", slog.String("key", key), slog.Any("error", err))
	}
}
