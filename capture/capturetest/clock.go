// Package capturetest provides a manually driven ticker for scheduler tests.
package capturetest

import (
	"sync"
	"time"
)

// Ticker fires only when its Clock is told to.
type Ticker struct {
	ch chan time.Time

	mu      sync.Mutex
	stopped bool
}

func (t *Ticker) C() <-chan time.Time { return t.ch }

func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *Ticker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Clock creates Tickers and fires them by hand.
type Clock struct {
	mu        sync.Mutex
	tickers   []*Ticker
	intervals []time.Duration
}

// NewTicker matches capture.TickerFunc once wrapped.
func (c *Clock) NewTicker(d time.Duration) *Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &Ticker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	c.intervals = append(c.intervals, d)
	return t
}

// Created is the number of tickers handed out so far.
func (c *Clock) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// Active is the number of tickers not stopped yet.
func (c *Clock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.Stopped() {
			n++
		}
	}
	return n
}

// Interval returns the period the latest ticker was created with.
func (c *Clock) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.intervals) == 0 {
		return 0
	}
	return c.intervals[len(c.intervals)-1]
}

// Tick fires the newest live ticker at the given time and reports whether
// the scheduler picked it up within a second.
func (c *Clock) Tick(at time.Time) bool {
	c.mu.Lock()
	var t *Ticker
	if n := len(c.tickers); n > 0 {
		t = c.tickers[n-1]
	}
	c.mu.Unlock()
	if t == nil || t.Stopped() {
		return false
	}
	select {
	case t.ch <- at:
		return true
	case <-time.After(time.Second):
		return false
	}
}
