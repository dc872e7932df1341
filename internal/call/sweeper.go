package call

import (
	"context"
	"log"
	"time"

	"chamada/internal/classify"
	"chamada/internal/metrics"
)

// Sweeper periodically deletes events older than the retention window, in
// batches, across every bucket collection.
type Sweeper struct {
	repo      Repository
	interval  time.Duration
	retention time.Duration
	batch     int
	now       func() time.Time
}

// NewSweeper builds a sweeper. Defaults: 60s interval, 10m retention, 400
// deletes per batch.
func NewSweeper(repo Repository, interval, retention time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	if batch <= 0 {
		batch = 400
	}
	return &Sweeper{
		repo:      repo,
		interval:  interval,
		retention: retention,
		batch:     batch,
		now:       time.Now,
	}
}

// Run loops until ctx is done. Errors in one iteration are logged and never
// stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("call sweeper started (interval %s, retention %s)", s.interval, s.retention)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("call sweeper stopped")
			return
		case <-ticker.C:
			if n := s.RunOnce(ctx); n > 0 {
				log.Printf("call sweeper removed %d expired events", n)
			}
		}
	}
}

// RunOnce performs one sweep over every collection and returns how many
// events were deleted. A failure in one collection is logged and does not
// abort the others.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	cutoff := s.now().Add(-s.retention)
	total := 0
	for _, bucket := range classify.Buckets() {
		for {
			n, err := s.repo.DeleteOlderThan(ctx, bucket, cutoff, s.batch)
			if err != nil {
				log.Printf("sweeping %s failed: %v", bucket, err)
				break
			}
			total += n
			metrics.SweptEvents.Add(float64(n))
			if n < s.batch {
				break
			}
		}
	}
	return total
}
