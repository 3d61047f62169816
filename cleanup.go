package authcore

import (
	"context"
	"log"
	"time"

	"github.com/mealkart/authcore/session"
)

// janitor periodically reconciles the per-user session indexes in Redis.
// Storage hygiene only: sliding expiry and lazy end-marking keep the
// registry correct whether or not this runs.
type janitor struct {
	store    *session.Store
	interval time.Duration
	done     chan struct{}
}

func startJanitor(store *session.Store, interval time.Duration) *janitor {
	j := &janitor{
		store:    store,
		interval: interval,
		done:     make(chan struct{}),
	}
	go j.run()
	return j
}

func (j *janitor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := j.store.ReconcileIndexes(ctx); err != nil {
				log.Printf("authcore: session index reconcile failed: %v", err)
			}
			cancel()
		case <-j.done:
			return
		}
	}
}

func (j *janitor) stop() {
	if j == nil {
		return
	}
	select {
	case <-j.done:
	default:
		close(j.done)
	}
}
