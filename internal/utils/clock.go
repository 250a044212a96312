package utils

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// MonotonicClock hands out UTC millisecond timestamps that strictly increase
// across calls, so server_ts never repeats inside one process even when the
// wall clock stalls or steps back.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{now: time.Now}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}
