// Package ratelimit provides per-key token bucket rate limiting for the MCP
// tools.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrRateLimited is returned by CheckLimit when a tool's bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter is a per-key token bucket limiter, safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // bucket size and initial token count
	nowFunc func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a limiter refilling rate tokens per second up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow takes one token for key. When none is available it returns false
// and the time until the next token, or a negative duration if the bucket
// never refills.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastCheck: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastCheck).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.tokens+l.rate*elapsed, float64(l.burst))
		b.lastCheck = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, -1
	}
	wait := time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	return false, wait
}

// ToolLimiters maps tool names to their limiters.
type ToolLimiters map[string]*Limiter

// Tool names with default limits. The simulate tool is configured
// separately because its cost depends on the run document.
const (
	ToolLeslie             = "clonesim_leslie"
	ToolStableDistribution = "clonesim_stable_distribution"
	ToolLogit              = "clonesim_logit"
	ToolInvLogit           = "clonesim_inv_logit"
	ToolSimulate           = "clonesim_simulate"
	ToolRuns               = "clonesim_runs"
	ToolExport             = "clonesim_export"
)

// NewToolLimiters returns the limiters of every MCP tool. simRate and
// simBurst bound clonesim_simulate.
func NewToolLimiters(simRate float64, simBurst int) ToolLimiters {
	return ToolLimiters{
		ToolLeslie:             NewLimiter(5.0, 20), // 300/minute, burst 20
		ToolStableDistribution: NewLimiter(5.0, 20),
		ToolLogit:              NewLimiter(10.0, 50),
		ToolInvLogit:           NewLimiter(10.0, 50),
		ToolRuns:               NewLimiter(1.0, 10), // 60/minute, burst 10
		ToolExport:             NewLimiter(0.2, 5),  // 12/minute, burst 5
		ToolSimulate:           NewLimiter(simRate, simBurst),
	}
}

// CheckLimit takes a token for toolName. Tools without a limiter are
// always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}

	allowed, wait := limiter.Allow(toolName)
	if allowed {
		return nil
	}
	if wait < 0 {
		return fmt.Errorf("%w for %s", ErrRateLimited, toolName)
	}
	return fmt.Errorf("%w for %s, retry in %s", ErrRateLimited, toolName, wait.Round(time.Millisecond))
}
