// internal/rooms/reaper.go
package rooms

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultReapInterval  = 5 * time.Minute
	DefaultRoomRetention = time.Hour
)

// Reaper periodically recycles stale finished rooms back into the
// waiting pool. It only ever touches rooms in the terminal state, so it
// is safe to run alongside live allocation.
type Reaper struct {
	store     Store
	interval  time.Duration
	retention time.Duration
	log       *logrus.Logger
}

func NewReaper(store Store, interval, retention time.Duration, logger *logrus.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if retention <= 0 {
		retention = DefaultRoomRetention
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Reaper{
		store:     store,
		interval:  interval,
		retention: retention,
		log:       logger,
	}
}

// Run sweeps on every tick until ctx is cancelled. Intended to run in
// its own goroutine.
func (rp *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	rp.log.WithFields(logrus.Fields{
		"interval":  rp.interval,
		"retention": rp.retention,
	}).Info("reaper started")

	for {
		select {
		case <-ctx.Done():
			rp.log.Info("reaper stopped")
			return
		case <-ticker.C:
			rp.Sweep(ctx)
		}
	}
}

// Sweep recycles finished rooms whose updated_at is older than the
// retention window. Exposed so tests and admin tooling can trigger a
// pass directly.
func (rp *Reaper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-rp.retention)
	n, err := rp.store.RecycleFinished(ctx, cutoff)
	if err != nil {
		rp.log.WithError(err).Error("reaper sweep failed")
		return
	}
	if n > 0 {
		rp.log.WithField("recycled", n).Info("reaper recycled finished rooms")
	}
}
