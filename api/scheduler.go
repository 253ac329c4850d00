/*
scheduler.go - Automated contract termination scheduler

PURPOSE:
  Periodically looks for EFFECTIVE contracts whose coverage window has
  ended and moves them to TERMINATED.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates the actual sweep to the contract service so the manual
    admin endpoint and the scheduler share one code path
  - Runs as the system actor; no caller rights are involved

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewTerminationScheduler(svc)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TerminateExpired endpoint (manual sweep)
  - contract/service.go: TerminateExpired
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/contract-engine/contract"
)

// TerminationScheduler sweeps expired contracts on a timer.
type TerminationScheduler struct {
	Service       *contract.Service
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewTerminationScheduler creates a new scheduler.
func NewTerminationScheduler(svc *contract.Service) *TerminationScheduler {
	return &TerminationScheduler{
		Service:       svc,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (ts *TerminationScheduler) Start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	ts.ticker = time.NewTicker(ts.CheckInterval)
	ts.wg.Add(1)

	go ts.run()

	log.Printf("[Scheduler] Started with check interval: %v", ts.CheckInterval)
}

// Stop stops the scheduler.
func (ts *TerminationScheduler) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.ticker != nil {
		ts.ticker.Stop()
		close(ts.stop)
		ts.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (ts *TerminationScheduler) run() {
	defer ts.wg.Done()

	// Run immediately on start
	ts.checkAndProcess()

	for {
		select {
		case <-ts.ticker.C:
			ts.checkAndProcess()
		case <-ts.stop:
			return
		}
	}
}

func (ts *TerminationScheduler) checkAndProcess() {
	ctx := context.Background()

	log.Printf("[Scheduler] Checking for expired contracts at %v", time.Now())

	res := ts.Service.TerminateExpired(ctx, contract.SystemActor())
	if !res.Success {
		// An empty sweep is the normal outcome most of the day.
		if res.Message != "No contracts to terminate!" {
			log.Printf("[Scheduler] Termination sweep failed: %s: %s", res.Message, res.Detail)
		}
		return
	}

	if terminated, ok := res.Data.([]*contract.Contract); ok {
		log.Printf("[Scheduler] Terminated %d expired contracts", len(terminated))
	}
}

// RunNow triggers an immediate check (for testing/admin).
func (ts *TerminationScheduler) RunNow() {
	ts.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (ts *TerminationScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ts.CheckInterval)
}
