/*
scheduler.go - Automated reconciliation scheduler

PURPOSE:
  Periodically sweeps every request and evicts allocations beyond its
  quantity. Over-allocation can appear when quantities drop or when
  members are fulfilled concurrently; the sweep restores
  num_allocated <= quantity without anyone having to ask.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Each request is reconciled in its own transaction (Engine.ReconcileAll)

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReconciliationScheduler(engine, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerReconcile endpoint (manual sweep)
  - generic/fulfillment.go: ReconcileRequest
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/scheduling-engine/generic"
)

// ReconciliationScheduler runs the over-allocation sweep on a ticker.
type ReconciliationScheduler struct {
	Engine        *generic.Engine
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReconciliationScheduler creates a new scheduler. A non-positive
// interval means one hour.
func NewReconciliationScheduler(engine *generic.Engine, interval time.Duration) *ReconciliationScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReconciliationScheduler{
		Engine:        engine,
		CheckInterval: interval,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker.C, rs.stop)

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *ReconciliationScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(context.Background())

	for {
		select {
		case <-tick:
			rs.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow sweeps once and returns the number of evicted commitments.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) int {
	evicted, err := rs.Engine.ReconcileAll(ctx)
	if err != nil {
		log.Printf("[Scheduler] Sweep failed after %d evictions: %v", evicted, err)
		return evicted
	}
	if evicted > 0 {
		log.Printf("[Scheduler] Completed: %d commitments evicted", evicted)
	}
	return evicted
}
