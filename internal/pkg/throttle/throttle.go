package throttle

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/atlasworks/payflow/internal/pkg/cache"
	"github.com/atlasworks/payflow/internal/pkg/env"
	"github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "payment:initiate:lease:"

var ctx = context.Background()

// CooldownLimiter bounds how often a new payment session may be created per
// key. The lease lives in Redis (SET NX with TTL) so the cool-down holds
// across instances; when Redis is unreachable the limiter degrades to a
// per-process cooldown map so duplicate submissions are still absorbed.
// A lease is never released early; it expires with its TTL.
type CooldownLimiter struct {
	client   *redis.Client
	cooldown time.Duration

	mu    sync.Mutex
	local map[string]time.Time
}

// NewCooldownLimiter creates a limiter over an injected Redis client. Pass a
// nil client for a purely in-process limiter (tests, degraded mode).
func NewCooldownLimiter(client *redis.Client, cooldown time.Duration) *CooldownLimiter {
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	return &CooldownLimiter{
		client:   client,
		cooldown: cooldown,
		local:    make(map[string]time.Time),
	}
}

// NewCooldownLimiterFromEnv builds the limiter from the shared cache client
// and PAYMENT_COOLDOWN_SECONDS (default 5).
func NewCooldownLimiterFromEnv() *CooldownLimiter {
	seconds, err := strconv.Atoi(env.GetEnv("PAYMENT_COOLDOWN_SECONDS", "5"))
	if err != nil || seconds <= 0 {
		seconds = 5
	}
	return NewCooldownLimiter(cache.GetClient(), time.Duration(seconds)*time.Second)
}

// NewMemoryLimiter creates a process-local limiter with no Redis backing.
func NewMemoryLimiter(cooldown time.Duration) *CooldownLimiter {
	return NewCooldownLimiter(nil, cooldown)
}

// Acquire takes the lease for key if no live lease exists and reports whether
// the caller may proceed. Callers that fail to acquire must not make any
// remote call.
func (l *CooldownLimiter) Acquire(key string) bool {
	if l.client != nil {
		ok, err := l.client.SetNX(ctx, leaseKeyPrefix+key, time.Now().Unix(), l.cooldown).Result()
		if err == nil {
			return ok
		}
		log.Printf("throttle: redis lease unavailable, using local cooldown: %v", err)
	}
	return l.acquireLocal(key)
}

func (l *CooldownLimiter) acquireLocal(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.local[key]; ok && now.Before(until) {
		return false
	}
	// Opportunistic cleanup of expired leases.
	for k, until := range l.local {
		if now.After(until) {
			delete(l.local, k)
		}
	}
	l.local[key] = now.Add(l.cooldown)
	return true
}
