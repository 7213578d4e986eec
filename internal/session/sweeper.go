package session

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultSweepInterval = 10 * time.Minute

// Sweeper periodically clears sessions that have been idle longer than ttl.
type Sweeper struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewSweeper returns nil when ttl is not positive, which disables sweeping.
func NewSweeper(store Store, ttl, interval time.Duration) *Sweeper {
	if store == nil || ttl <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{store: store, ttl: ttl, interval: interval, now: time.Now}
}

// Start launches the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("session sweeper started (ttl=%s interval=%s)", s.ttl, s.interval)
}

func (s *Sweeper) run(ctx context.Context) {
	for {
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
		s.sweepOnce(ctx)
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) int {
	removed, err := s.store.Sweep(ctx, s.now().Add(-s.ttl))
	if err != nil {
		log.WithError(err).Warn("session sweeper: sweep failed")
		return 0
	}
	if removed > 0 {
		log.Debugf("session sweeper: cleared %d idle sessions", removed)
	}
	return removed
}
