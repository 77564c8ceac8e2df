// Package fetch retrieves page markup for the schedule walker and the box
// score pipeline, spacing requests out so the source site is not hammered.
package fetch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Politeness enforces a minimum interval between request starts and caps
// the number of requests in flight.
type Politeness struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

func NewPoliteness(interval time.Duration, maxConcurrency int) *Politeness {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Politeness{
		// Burst 1: no two starts closer than interval.
		limiter: rate.NewLimiter(limit, 1),
		slots:   make(chan struct{}, maxConcurrency),
	}
}

// Wait blocks until the next request start is allowed.
func (p *Politeness) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Hold takes a concurrency slot. The returned func gives it back.
func (p *Politeness) Hold(ctx context.Context) (func(), error) {
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Acquire takes a slot and then waits for the start interval. The returned
// func releases the slot and must be called once the request is done.
func (p *Politeness) Acquire(ctx context.Context) (func(), error) {
	release, err := p.Hold(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Wait(ctx); err != nil {
		release()
		return nil, err
	}
	return release, nil
}
