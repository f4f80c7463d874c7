package safety

import (
	"strings"
	"sync"
	"time"
)

// bucket is a continuous-refill token bucket. Each bucket has its own
// mutex so unrelated agent/tool pairs never serialize against each other.
type bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

func (b *bucket) consume(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(b.capacity, b.tokens+elapsed*b.refillRate)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *bucket) available(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens = min(b.capacity, b.tokens+elapsed*b.refillRate)
	b.lastRefill = now
	return b.tokens
}

// RateLimiter throttles tool access per (agent, tool) pair using token
// buckets. Buckets are created lazily, start full, and refill at
// maxCallsPerMinute/60 tokens per second up to the burst size.
type RateLimiter struct {
	maxPerMinute int
	burst        int

	mu          sync.Mutex
	buckets     map[string]*bucket
	agentLimits map[string]limitOverride

	now func() time.Time
}

// limitOverride replaces the default per-minute rate for one agent.
type limitOverride struct {
	maxPerMinute int
	burst        int
}

// NewRateLimiter creates a limiter allowing maxCallsPerMinute sustained
// calls with bursts up to burst. A burst of 0 defaults to the per-minute
// rate.
func NewRateLimiter(maxCallsPerMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = maxCallsPerMinute
	}
	return &RateLimiter{
		maxPerMinute: maxCallsPerMinute,
		burst:        burst,
		buckets:      make(map[string]*bucket),
		agentLimits:  make(map[string]limitOverride),
		now:          time.Now,
	}
}

// SetAgentLimit overrides the per-minute rate for one agent. A burst of
// 0 defaults to the per-minute rate. Existing buckets for the agent are
// discarded so the new rate applies on the next check. Setting the same
// limit again is a no-op.
func (rl *RateLimiter) SetAgentLimit(agentID string, maxCallsPerMinute, burst int) {
	if burst <= 0 {
		burst = maxCallsPerMinute
	}
	next := limitOverride{maxPerMinute: maxCallsPerMinute, burst: burst}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if cur, ok := rl.agentLimits[agentID]; ok && cur == next {
		return
	}
	rl.agentLimits[agentID] = next
	prefix := agentID + ":"
	for key := range rl.buckets {
		if strings.HasPrefix(key, prefix) {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) getBucket(agentID, toolName string) *bucket {
	key := agentID + ":" + toolName
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		rate, burst := rl.maxPerMinute, rl.burst
		if ov, ok := rl.agentLimits[agentID]; ok {
			rate, burst = ov.maxPerMinute, ov.burst
		}
		b = &bucket{
			capacity:   float64(burst),
			refillRate: float64(rate) / 60.0,
			tokens:     float64(burst),
			lastRefill: rl.now(),
		}
		rl.buckets[key] = b
	}
	return b
}

// Allow consumes one token for the (agent, tool) pair if available.
// Refill and deduction happen atomically per bucket; a denied check
// deducts nothing.
func (rl *RateLimiter) Allow(agentID, toolName string) bool {
	return rl.getBucket(agentID, toolName).consume(rl.now())
}

// Remaining returns the current token level for the (agent, tool) pair.
func (rl *RateLimiter) Remaining(agentID, toolName string) float64 {
	return rl.getBucket(agentID, toolName).available(rl.now())
}

// Reset discards the bucket for the (agent, tool) pair so the next check
// starts from a full bucket. For tests and operator intervention.
func (rl *RateLimiter) Reset(agentID, toolName string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, agentID+":"+toolName)
}
