/**
 * Redis bus shared by the tutor server replicas and the worker
 *
 * - board events over pub/sub (snapshot uploaded, board state changed)
 * - the busy lock, a SET NX PX key per board released by token
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/adverant/nexus/whiteboard-tutor/internal/logging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// EventChannel is the pub/sub channel board events travel on
const EventChannel = "tutor:board-events"

// Event types
const (
	EventSnapshotUploaded = "snapshot-uploaded"
	EventStateChanged     = "state-changed"
)

// Event is one board notification
type Event struct {
	Type      string    `json:"type"`
	UserID    int64     `json:"userId"`
	Question  int       `json:"question"`
	MessageID string    `json:"messageId,omitempty"`
	URL       string    `json:"url,omitempty"`
	State     string    `json:"state,omitempty"`
	At        time.Time `json:"at"`
}

// EventHandler receives decoded events
type EventHandler func(ctx context.Context, event Event)

// releaseScript deletes the lock only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisBus wraps one go-redis client
type RedisBus struct {
	client *redis.Client
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisBus connects to Redis
func NewRedisBus(redisURL string) (*RedisBus, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client: client,
		logger: logging.NewLogger("RedisBus"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Publish sends an event to every subscriber
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, EventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// Subscribe delivers events to handler on a background goroutine until Close
func (b *RedisBus) Subscribe(handler EventHandler) error {
	sub := b.client.Subscribe(b.ctx, EventChannel)
	if _, err := sub.Receive(b.ctx); err != nil {
		sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", EventChannel, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-b.ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("Dropping malformed event", "error", err)
					continue
				}
				handler(b.ctx, event)
			}
		}
	}()

	b.logger.Info("Subscribed to board events", "channel", EventChannel)
	return nil
}

// TryLock takes key for ttl if nobody holds it. The returned release
// function is safe to call once the lock has expired.
func (b *RedisBus) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := b.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, b.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			b.logger.Warn("Failed to release lock", "key", key, "error", err)
		}
	}
	return release, true, nil
}

// Ping checks Redis connectivity
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close stops subscribers and closes the client
func (b *RedisBus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// RedisBusyLock is a busy guard shared across server replicas
type RedisBusyLock struct {
	bus    *RedisBus
	prefix string
	ttl    time.Duration
}

// NewRedisBusyLock creates a busy guard. ttl bounds how long a crashed
// replica can hold a board and should exceed the analysis timeout.
func NewRedisBusyLock(bus *RedisBus, ttl time.Duration) *RedisBusyLock {
	return &RedisBusyLock{bus: bus, prefix: "tutor:busy:", ttl: ttl}
}

// TryAcquire takes the busy flag for key
func (l *RedisBusyLock) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	return l.bus.TryLock(ctx, l.prefix+key, l.ttl)
}
