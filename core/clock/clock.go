// Package clock provides the simulation's virtual time source.
package clock

import (
	"context"
	"math"
	"sync"
	"time"
)

// Config configures a Clock.
type Config struct {
	// StartHour is the hour of day Reset jumps to.
	StartHour int `json:"start_hour"`
	// Multiplier scales wall time; 0 freezes time and +Inf makes waits instant.
	Multiplier float64 `json:"multiplier"`
	// Tick is the wall-clock cadence at which simulated time advances.
	Tick time.Duration `json:"tick"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Tick <= 0 {
		c.Tick = 100 * time.Millisecond
	}
	if c.StartHour <= 0 || c.StartHour > 23 {
		c.StartHour = 6
	}
}

type waiter struct {
	target time.Time
	ch     chan struct{}
}

// Clock is a virtual clock. Now returns the value computed at the last tick.
type Clock struct {
	mu         sync.Mutex
	now        time.Time
	multiplier float64
	scale      float64
	startHour  int
	tick       time.Duration
	waiters    []waiter
	wall       func() time.Time

	runOnce sync.Once
	stop    chan struct{}
	stopped bool
}

// New returns a clock reset to the configured start of day and playing.
func New(cfg Config) *Clock {
	cfg.SetDefaults()
	c := &Clock{
		multiplier: cfg.Multiplier,
		scale:      1,
		startHour:  cfg.StartHour,
		tick:       cfg.Tick,
		wall:       time.Now,
		stop:       make(chan struct{}),
	}
	c.Reset()
	return c
}

// Start launches the ticker. It returns immediately; the ticker stops when
// ctx is done or Stop is called.
func (c *Clock) Start(ctx context.Context) {
	c.runOnce.Do(func() {
		go c.run(ctx)
	})
}

func (c *Clock) run(ctx context.Context) {
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-t.C:
			c.mu.Lock()
			rate := c.rateLocked()
			c.mu.Unlock()
			if rate > 0 && !math.IsInf(rate, 1) {
				c.Advance(time.Duration(float64(c.tick) * rate))
			}
		}
	}
}

// Stop halts the ticker.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.stopped {
		c.stopped = true
		close(c.stop)
	}
}

func (c *Clock) rateLocked() float64 {
	if c.scale == 0 {
		return 0
	}
	return c.multiplier * c.scale
}

// Now returns the cached simulated time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves simulated time forward by d and wakes due waiters.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.releaseLocked()
	c.mu.Unlock()
}

func (c *Clock) releaseLocked() {
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !c.now.Before(w.target) {
			close(w.ch)
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

// Play resumes time at the configured multiplier.
func (c *Clock) Play() {
	c.mu.Lock()
	c.scale = 1
	c.mu.Unlock()
}

// Pause freezes time without resetting it.
func (c *Clock) Pause() {
	c.mu.Lock()
	c.scale = 0
	c.mu.Unlock()
}

// SetMultiplier changes the playback speed.
func (c *Clock) SetMultiplier(m float64) {
	c.mu.Lock()
	c.multiplier = m
	c.mu.Unlock()
}

// Multiplier returns the effective speed, 0 when paused.
func (c *Clock) Multiplier() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rateLocked()
}

// Reset jumps to today's start hour, releasing every pending waiter whose
// target is already reached.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	y, m, d := c.wall().Date()
	c.now = time.Date(y, m, d, c.startHour, 0, 0, 0, time.Local)
	c.releaseLocked()
}

// Set forces the simulated time.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.releaseLocked()
	c.mu.Unlock()
}

// WaitUntil blocks until simulated time reaches target. It returns at once
// when the clock is frozen (multiplier 0) or instant (+Inf); in instant mode
// time jumps to target.
func (c *Clock) WaitUntil(ctx context.Context, target time.Time) error {
	c.mu.Lock()
	rate := c.rateLocked()
	switch {
	case rate == 0:
		c.mu.Unlock()
		return nil
	case math.IsInf(rate, 1):
		if c.now.Before(target) {
			c.now = target
			c.releaseLocked()
		}
		c.mu.Unlock()
		return nil
	case !c.now.Before(target):
		c.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	c.waiters = append(c.waiters, waiter{target: target, ch: ch})
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		c.drop(ch)
		return ctx.Err()
	}
}

// Sleep waits for d of simulated time.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	return c.WaitUntil(ctx, c.Now().Add(d))
}

func (c *Clock) drop(ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w.ch == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
