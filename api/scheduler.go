/*
scheduler.go - Automated engine pass scheduler

PURPOSE:
  Periodically runs a full engine pass (promote contributions, process
  withdrawals, accrue contracts) so balances stay current without manual
  triggering.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Executes one pass immediately on start, then on every tick
  - Records each pass in the handler's run history for UI display
  - Passes never abort the scheduler; failures are logged and the next
    tick retries (the engine is idempotent per business day)

USAGE:
  scheduler := NewRunScheduler(runner, handler, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRun endpoint (manual pass)
  - fixedincome/run.go: Runner
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/portfolio-engine/fixedincome"
)

// RunScheduler executes engine passes on a fixed interval.
type RunScheduler struct {
	Runner        *fixedincome.Runner
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	// BeforePass, when set, runs ahead of each scheduled pass. Used to
	// refresh cached quote prices before balances are recomputed.
	BeforePass func(context.Context)

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRunScheduler creates a new scheduler.
func NewRunScheduler(runner *fixedincome.Runner, handler *Handler, log *zap.Logger) *RunScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RunScheduler{
		Runner:        runner,
		Handler:       handler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RunScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info("scheduler disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run()

	rs.log.Info("scheduler started", zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler.
func (rs *RunScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.log.Info("scheduler stopped")
	}
}

func (rs *RunScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.runPass()

	for {
		select {
		case <-rs.ticker.C:
			rs.runPass()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RunScheduler) runPass() {
	ctx := context.Background()
	if rs.BeforePass != nil {
		rs.BeforePass(ctx)
	}
	report, err := rs.Runner.Run(ctx)
	if err != nil {
		rs.log.Error("scheduled pass failed", zap.Error(err))
		return
	}
	if rs.Handler != nil {
		rs.Handler.RecordRun(report)
	}
	rs.log.Info("scheduled pass finished",
		zap.Int("promoted", report.Promoted),
		zap.Int("withdrawals", report.WithdrawalsProcessed),
		zap.Int("accrued", report.ContractsAccrued),
		zap.Int("failures", len(report.Failures)),
	)
}
