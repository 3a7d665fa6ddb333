package search

import (
	"context"
	"sync"
	"time"
)

type clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// rateLimitedProvider hands out call slots at least minInterval apart. Each
// caller reserves its slot up front, so waiters are served in arrival order.
type rateLimitedProvider struct {
	inner       Provider
	minInterval time.Duration
	clock       clock

	mu       sync.Mutex
	nextSlot time.Time
}

// RateLimited spaces calls to inner by at least minInterval. It returns inner
// unchanged when minInterval is not positive.
func RateLimited(inner Provider, minInterval time.Duration) Provider {
	return newRateLimited(inner, minInterval, systemClock{})
}

func newRateLimited(inner Provider, minInterval time.Duration, clk clock) Provider {
	if inner == nil || minInterval <= 0 {
		return inner
	}
	return &rateLimitedProvider{
		inner:       inner,
		minInterval: minInterval,
		clock:       clk,
	}
}

func (p *rateLimitedProvider) Search(ctx context.Context, query string) ([]Result, error) {
	slot, wait := p.reserve()
	if wait > 0 {
		select {
		case <-ctx.Done():
			p.release(slot)
			return nil, ctx.Err()
		case <-p.clock.After(wait):
		}
	}
	return p.inner.Search(ctx, query)
}

func (p *rateLimitedProvider) reserve() (time.Time, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	slot := p.nextSlot
	if slot.Before(now) {
		slot = now
	}
	p.nextSlot = slot.Add(p.minInterval)
	return slot, slot.Sub(now)
}

// release hands an abandoned slot back when no later caller reserved after it.
func (p *rateLimitedProvider) release(slot time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nextSlot.Equal(slot.Add(p.minInterval)) {
		p.nextSlot = slot
	}
}
