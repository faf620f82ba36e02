package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

// RateLimitResult describe el estado del cupo despues de consumir un punto.
type RateLimitResult struct {
	Allowed      bool
	Remaining    int
	MsBeforeNext int64
}

// RateLimiter consume un punto por clave dentro de una ventana de duracion fija.
type RateLimiter interface {
	Consume(ctx context.Context, key string) (RateLimitResult, error)
	Points() int
	Duration() time.Duration
}

type rateWindow struct {
	count   int
	resetAt time.Time
}

type memoryRateLimiter struct {
	mu       sync.Mutex
	prefix   string
	points   int
	duration time.Duration
	windows  map[string]rateWindow
	now      func() time.Time
}

// NewMemoryRateLimiter crea un limitador en memoria, util sin Redis.
func NewMemoryRateLimiter(prefix string, points int, duration time.Duration) RateLimiter {
	if points <= 0 {
		points = 1
	}
	if duration <= 0 {
		duration = time.Minute
	}
	return &memoryRateLimiter{
		prefix:   prefix,
		points:   points,
		duration: duration,
		windows:  make(map[string]rateWindow),
		now:      time.Now,
	}
}

func (l *memoryRateLimiter) Points() int             { return l.points }
func (l *memoryRateLimiter) Duration() time.Duration { return l.duration }

func (l *memoryRateLimiter) Consume(_ context.Context, key string) (RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := l.prefix + strings.TrimSpace(key)
	w, ok := l.windows[k]
	if !ok || !now.Before(w.resetAt) {
		w = rateWindow{resetAt: now.Add(l.duration)}
	}
	w.count++
	l.windows[k] = w

	return buildRateLimitResult(w.count, l.points, w.resetAt.Sub(now).Milliseconds()), nil
}

func buildRateLimitResult(count, points int, msBeforeNext int64) RateLimitResult {
	remaining := points - count
	if remaining < 0 {
		remaining = 0
	}
	if msBeforeNext < 0 {
		msBeforeNext = 0
	}
	return RateLimitResult{
		Allowed:      count <= points,
		Remaining:    remaining,
		MsBeforeNext: msBeforeNext,
	}
}
