package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

const usageChannel = "usage_updates"

// UsageEvent is published on every admitted request so dashboards and
// other instances can react without polling the ledger.
type UsageEvent struct {
	Action    string `json:"action"`
	AccountID string `json:"account_id"`
	Endpoint  string `json:"endpoint"`
	Timestamp int64  `json:"timestamp"`
}

// Manager is a two-tier TTL cache: a local in-process cache in front of an
// optional redis backend. When redis is unreachable the manager degrades to
// local-only operation instead of failing requests. It is constructed once
// at startup and passed to consumers; there are no package-level instances.
type Manager struct {
	redisClient *redis.Client
	localCache  *gocache.Cache
	pubSub      *redis.PubSub
	ctx         context.Context
	mu          sync.Mutex // guards local counter read-modify-write

	events chan UsageEvent
}

// NewManager connects to redis at redisURL and builds the local tier with
// the given default TTL. A failed redis connection is logged, not fatal.
func NewManager(redisURL string, localTTL time.Duration) *Manager {
	m := &Manager{
		ctx:        context.Background(),
		localCache: gocache.New(localTTL, 2*localTTL),
		events:     make(chan UsageEvent, 64),
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("cache: redis connection failed, using local cache only: %v", err)
		client.Close()
		return m
	}

	log.Println("cache: redis connection established")
	m.redisClient = client
	m.pubSub = client.Subscribe(m.ctx, usageChannel)
	go m.listenForUpdates()

	return m
}

func (m *Manager) listenForUpdates() {
	ch := m.pubSub.Channel()
	for msg := range ch {
		var ev UsageEvent
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Printf("cache: failed to parse usage update: %v", err)
			continue
		}

		// Another instance recorded usage; drop the derived summaries so
		// the next read rebuilds them.
		m.localCache.Delete(fmt.Sprintf("usage:daily:%s", ev.AccountID))

		select {
		case m.events <- ev:
		default: // slow consumer, drop rather than block the subscriber
		}
	}
}

// Events returns the stream of usage events received over pub/sub. The
// channel is shared; intended for a single hub consumer.
func (m *Manager) Events() <-chan UsageEvent {
	return m.events
}

// Set stores value under key in both tiers.
func (m *Manager) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.localCache.Set(key, data, ttl)

	if m.redisClient != nil {
		ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
		defer cancel()
		return m.redisClient.Set(ctx, key, data, ttl).Err()
	}
	return nil
}

// Get loads key into target. Expired entries read as absent; eviction is
// lazy, no background sweep is needed for correctness.
func (m *Manager) Get(key string, target interface{}) (bool, error) {
	if val, found := m.localCache.Get(key); found {
		data, ok := val.([]byte)
		if !ok {
			return false, fmt.Errorf("cache: entry for %s is not a payload", key)
		}
		return true, json.Unmarshal(data, target)
	}

	if m.redisClient != nil {
		ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
		defer cancel()

		data, err := m.redisClient.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return false, nil
		} else if err != nil {
			return false, err
		}

		// Warm the local tier for subsequent reads.
		m.localCache.Set(key, data, gocache.DefaultExpiration)
		return true, json.Unmarshal(data, target)
	}

	return false, nil
}

// Delete removes key from both tiers.
func (m *Manager) Delete(key string) error {
	m.localCache.Delete(key)

	if m.redisClient != nil {
		ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
		defer cancel()
		return m.redisClient.Del(ctx, key).Err()
	}
	return nil
}

// IncrementWindow atomically bumps a fixed-window counter and returns the
// new count. The window's expiry is set when the counter is created and is
// never extended by later increments.
func (m *Manager) IncrementWindow(key string, ttl time.Duration) (int64, error) {
	if m.redisClient != nil {
		ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
		defer cancel()

		count, err := m.redisClient.Incr(ctx, key).Result()
		if err != nil {
			return 0, err
		}
		if count == 1 {
			if err := m.redisClient.Expire(ctx, key, ttl).Err(); err != nil {
				log.Printf("cache: failed to set expiry on %s: %v", key, err)
			}
		}
		return count, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Add is a no-op when the key exists, so the original expiry sticks.
	m.localCache.Add(key, int64(0), ttl)
	return m.localCache.IncrementInt64(key, 1)
}

// PublishUsage broadcasts a usage event to all instances. Best effort: in
// local-only mode the event is delivered to this instance's hub directly.
func (m *Manager) PublishUsage(accountID, endpoint string) {
	ev := UsageEvent{
		Action:    "usage_updated",
		AccountID: accountID,
		Endpoint:  endpoint,
		Timestamp: time.Now().Unix(),
	}

	if m.redisClient == nil {
		select {
		case m.events <- ev:
		default:
		}
		return
	}

	data, _ := json.Marshal(ev)
	ctx, cancel := context.WithTimeout(m.ctx, 5*time.Second)
	defer cancel()
	m.redisClient.Publish(ctx, usageChannel, data)
}

// IsAvailable reports whether the redis tier is connected.
func (m *Manager) IsAvailable() bool {
	return m.redisClient != nil
}

// Close releases the redis connection and pub/sub subscription.
func (m *Manager) Close() error {
	if m.pubSub != nil {
		m.pubSub.Close()
	}
	if m.redisClient != nil {
		return m.redisClient.Close()
	}
	return nil
}
