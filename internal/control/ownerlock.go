package control

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ownerLocks serializes lifecycle operations per owner. Operations against
// different owners never contend. When a lease backend is configured the
// serialization extends across control plane instances; the in-process mutex
// is always taken first so a single instance never round-trips to Redis for
// its own contention.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	lease *OwnerLease
}

func newOwnerLocks(lease *OwnerLease) *ownerLocks {
	return &ownerLocks{locks: make(map[string]*sync.Mutex), lease: lease}
}

func (l *ownerLocks) ownerMutex(ownerID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[ownerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[ownerID] = m
	}
	return m
}

// acquire blocks until the owner lock is held, returning the release
// function. The context bounds the wait for the cross-instance lease only;
// the local mutex is uninterruptible.
func (l *ownerLocks) acquire(ctx context.Context, ownerID string) (func(), error) {
	m := l.ownerMutex(ownerID)
	m.Lock()
	if l.lease == nil {
		return m.Unlock, nil
	}
	release, err := l.lease.Acquire(ctx, ownerID)
	if err != nil {
		m.Unlock()
		return nil, err
	}
	return func() {
		release()
		m.Unlock()
	}, nil
}

const (
	defaultLeaseTTL    = 30 * time.Second
	leaseRetryDelay    = 100 * time.Millisecond
	leaseKeyPrefix     = "streamcast:owner:"
	leaseReleaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
)

var releaseScript = redis.NewScript(leaseReleaseScript)

// OwnerLease is a Redis-backed advisory lock keyed by owner. A lease expires
// on its own after the TTL so a crashed instance cannot wedge an owner.
type OwnerLease struct {
	client *redis.Client
	ttl    time.Duration
}

// OwnerLeaseConfig configures the cross-instance lease backend.
type OwnerLeaseConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	TTL      time.Duration
}

// NewOwnerLease connects to Redis and verifies it is reachable.
func NewOwnerLease(ctx context.Context, cfg OwnerLeaseConfig) (*OwnerLease, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("owner lease: ping %s: %w", cfg.Addr, err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &OwnerLease{client: client, ttl: ttl}, nil
}

// Close releases the Redis connection pool.
func (l *OwnerLease) Close() error { return l.client.Close() }

// Acquire polls until the owner key is free or the context expires. The
// returned release deletes the key only if this holder still owns it.
func (l *OwnerLease) Acquire(ctx context.Context, ownerID string) (func(), error) {
	key := leaseKeyPrefix + ownerID
	token := leaseToken()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("owner lease: acquire %s: %w", ownerID, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("owner lease: acquire %s: %w", ownerID, ctx.Err())
		case <-time.After(leaseRetryDelay):
		}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}

func leaseToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
