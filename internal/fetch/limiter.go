package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// Defaults for per-host politeness.
const (
	DefaultMaxPerHost = 2
	DefaultHostDelay  = 500 * time.Millisecond
)

// HostLimiter bounds concurrent requests per host and spaces consecutive
// requests to the same host by at least delay.
type HostLimiter struct {
	mu          sync.Mutex
	maxPerHost  int
	delay       time.Duration
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

// NewHostLimiter creates a per-host limiter.
func NewHostLimiter(maxPerHost int, delay time.Duration) *HostLimiter {
	if maxPerHost < 1 {
		maxPerHost = DefaultMaxPerHost
	}
	return &HostLimiter{
		maxPerHost:  maxPerHost,
		delay:       delay,
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// Acquire gets a slot for host, blocking until one is free and the minimum
// delay since the last request to host has passed.
func (hl *HostLimiter) Acquire(ctx context.Context, host string) error {
	hl.mu.Lock()
	sem, ok := hl.semaphores[host]
	if !ok {
		sem = make(chan struct{}, hl.maxPerHost)
		hl.semaphores[host] = sem
	}
	hl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	hl.mu.Lock()
	last := hl.lastRequest[host]
	hl.mu.Unlock()

	if !last.IsZero() {
		if wait := hl.delay - time.Since(last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				<-sem
				return ctx.Err()
			}
		}
	}
	return nil
}

// Release frees the slot for host and records the request time.
func (hl *HostLimiter) Release(host string) {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	hl.lastRequest[host] = time.Now()
	if sem, ok := hl.semaphores[host]; ok {
		<-sem
	}
}

// HostOf returns the host part of rawURL, or rawURL itself if unparsable.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
