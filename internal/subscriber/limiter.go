package subscriber

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ActorLimiter throttles ingress per actor so one chatty client cannot starve
// the receipt engine.
type ActorLimiter struct {
	mu     sync.Mutex
	actors map[string]*actor
	rps    rate.Limit
	burst  int
	idle   time.Duration
}

type actor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewActorLimiter(perSecond float64, burst int) *ActorLimiter {
	return &ActorLimiter{
		actors: make(map[string]*actor),
		rps:    rate.Limit(perSecond),
		burst:  burst,
		idle:   5 * time.Minute,
	}
}

func (l *ActorLimiter) Allow(actorID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.actors[actorID]
	if !ok {
		a = &actor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.actors[actorID] = a
	}
	a.lastSeen = time.Now()
	return a.limiter.Allow()
}

func (l *ActorLimiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := now.Add(-l.idle)
	for id, a := range l.actors {
		if a.lastSeen.Before(cutoff) {
			delete(l.actors, id)
		}
	}
}

// Run drops idle actors every minute until ctx ends.
func (l *ActorLimiter) Run(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.prune(now)
		}
	}
}
