package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"topup-storefront/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// StatusCache implements ports.StatusCache. Values are JSON snapshots keyed
// by transaction id.
type StatusCache struct {
	client goredis.Cmdable
	prefix string
}

// NewStatusCache creates a new Redis-backed status cache.
func NewStatusCache(client goredis.Cmdable) *StatusCache {
	return &StatusCache{
		client: client,
		prefix: "txstatus:",
	}
}

// Get returns nil, nil on a miss.
func (c *StatusCache) Get(ctx context.Context, id uuid.UUID) (*domain.StatusSnapshot, error) {
	raw, err := c.client.Get(ctx, c.prefix+id.String()).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis status get: %w", err)
	}

	var snap domain.StatusSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A value we cannot read is treated as a miss and dropped.
		_ = c.client.Del(ctx, c.prefix+id.String()).Err()
		return nil, nil
	}
	return &snap, nil
}

// Set stores a snapshot for ttl.
func (c *StatusCache) Set(ctx context.Context, snap *domain.StatusSnapshot, ttl time.Duration) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal status snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+snap.TransactionID.String(), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis status set: %w", err)
	}
	return nil
}
