// Package idempotency deduplicates canonical payment events so a gateway's
// at-least-once delivery never double-applies a transition.
package idempotency

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard maintains a durable set of already-admitted event ids in Redis.
// Admission is a single SET NX, so two concurrent deliveries of the same
// event id race through Redis itself: exactly one caller admits, the other
// observes a duplicate. There is no check-then-act window.
type Guard struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewGuard creates a guard on an existing Redis client. ttl bounds how long
// event ids are remembered; it must exceed the gateways' retry windows.
func NewGuard(client *redis.Client, ttl time.Duration) *Guard {
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Guard{redis: client, ttl: ttl}
}

// NewGuardFromURL creates a guard by connecting to Redis
func NewGuardFromURL(redisURL string, ttl time.Duration) (*Guard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Printf("[Idempotency] Connected to Redis at %s", redisURL)

	return NewGuard(client, ttl), nil
}

// Admit records the event id and reports whether this caller won admission.
// false means the event was already applied (or is being applied by a
// concurrent delivery); the caller must still acknowledge the notification
// to the gateway. Event ids are scoped per gateway since they are only
// unique within a gateway's namespace.
func (g *Guard) Admit(ctx context.Context, gateway, eventID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("empty event id")
	}

	key := fmt.Sprintf("payment_event:%s:%s", gateway, eventID)
	admitted, err := g.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("recording event id: %w", err)
	}
	return admitted, nil
}

// Close closes the Redis connection
func (g *Guard) Close() error {
	return g.redis.Close()
}
