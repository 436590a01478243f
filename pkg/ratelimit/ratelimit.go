// Package ratelimit 按 key 的进程内令牌桶限流
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 限流接口
type RateLimiter interface {
	// Allow 判断给定 key 的本次请求是否放行
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Limit 限流规则：每 Period 允许 Rate 次，突发 Burst
type Limit struct {
	Rate   float64
	Period time.Duration
	Burst  int
}

// Result 限流判断结果
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalRateLimiter 基于 x/time/rate 的内存限流器，闲置的 key 定期回收
type LocalRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*entry
	idle     time.Duration
	now      func() time.Time
}

// NewLocalRateLimiter 创建内存限流器，idle 为 key 闲置回收时长
func NewLocalRateLimiter(idle time.Duration) *LocalRateLimiter {
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	return &LocalRateLimiter{
		visitors: make(map[string]*entry),
		idle:     idle,
		now:      time.Now,
	}
}

func (l *LocalRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	now := l.now()

	l.mu.Lock()
	e, ok := l.visitors[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(toRate(limit), max(limit.Burst, 1))}
		l.visitors[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &Result{Allowed: false, RetryAfter: delay}, nil
	}
	return &Result{Allowed: true, Remaining: int(e.limiter.TokensAt(now))}, nil
}

// Sweep 回收闲置超过 idle 的 key
func (l *LocalRateLimiter) Sweep() int {
	cutoff := l.now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, e := range l.visitors {
		if e.lastSeen.Before(cutoff) {
			delete(l.visitors, k)
			removed++
		}
	}
	return removed
}

// Run 周期性执行 Sweep 直至 ctx 结束
func (l *LocalRateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func toRate(limit Limit) rate.Limit {
	if limit.Rate <= 0 {
		return rate.Inf
	}
	period := limit.Period
	if period <= 0 {
		period = time.Second
	}
	return rate.Limit(limit.Rate / period.Seconds())
}
