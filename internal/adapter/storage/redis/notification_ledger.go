package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// NotificationLedger implements ports.NotificationLedger. It remembers the
// Request-Id of every gateway notification that was fully processed so a
// redelivery can be acknowledged without touching the database.
type NotificationLedger struct {
	client goredis.Cmdable
	prefix string
}

// NewNotificationLedger creates a new Redis-backed ledger.
func NewNotificationLedger(client goredis.Cmdable) *NotificationLedger {
	return &NotificationLedger{
		client: client,
		prefix: "notif:",
	}
}

// Seen reports whether requestID was remembered and has not expired.
func (l *NotificationLedger) Seen(ctx context.Context, requestID string) (bool, error) {
	if requestID == "" {
		return false, nil
	}
	n, err := l.client.Exists(ctx, l.prefix+requestID).Result()
	if err != nil {
		return false, fmt.Errorf("redis ledger exists: %w", err)
	}
	return n == 1, nil
}

// Remember records requestID for ttl. Empty ids are ignored.
func (l *NotificationLedger) Remember(ctx context.Context, requestID string, ttl time.Duration) error {
	if requestID == "" {
		return nil
	}
	if err := l.client.Set(ctx, l.prefix+requestID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis ledger set: %w", err)
	}
	return nil
}
