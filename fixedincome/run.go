/*
run.go - One batch pass over the ledger

PURPOSE:
  Drives the three engines over the store's current snapshot, in order:
  contribution promoter, withdrawal allocator, accrual engine. Each entity is
  processed in isolation: a failure on one never aborts the batch.

ISOLATION & REPORTING:
  Every skip and failure is recorded in the RunReport and logged with the
  entity identity and reason. Nothing is silently dropped.

CONCURRENCY:
  One logical pass, sequential. Withdrawals of the same asset must never be
  allocated concurrently (see withdraw.go); sequential processing satisfies
  that trivially. An interrupted run leaves some entities unprocessed until
  the next run, protected by the idempotency guards on each engine.
*/
package fixedincome

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// RUNNER - Promoter -> Allocator -> Accrual, once per invocation
// =============================================================================

type Runner struct {
	store    Store
	promoter *Promoter
	alloc    *Allocator
	accrual  *AccrualEngine
	rates    RateProvider
	log      *zap.Logger
	now      func() time.Time
}

// RunnerConfig carries the runner's collaborators. Explicit, injected; no
// process-wide singletons.
type RunnerConfig struct {
	Store    Store
	Calendar *Calendar
	Rates    RateProvider
	Log      *zap.Logger
}

func NewRunner(cfg RunnerConfig) *Runner {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		store:    cfg.Store,
		promoter: NewPromoter(cfg.Store),
		alloc:    NewAllocator(cfg.Store),
		accrual:  NewAccrualEngine(cfg.Calendar),
		rates:    cfg.Rates,
		log:      log,
		now:      time.Now,
	}
}

// EntityFailure records one isolated entity-level failure.
type EntityFailure struct {
	Entity string
	ID     string
	Reason string
}

// RunReport summarizes one batch pass.
type RunReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	AsOf       Date

	Promoted             int
	WithdrawalsProcessed int
	ContractsAccrued     int
	Skipped              int

	Failures []EntityFailure
}

func (r *RunReport) fail(log *zap.Logger, entity, id string, err error) {
	r.Failures = append(r.Failures, EntityFailure{Entity: entity, ID: id, Reason: err.Error()})
	log.Warn("entity skipped",
		zap.String("entity", entity),
		zap.String("id", id),
		zap.Error(err),
	)
}

// Run executes one full pass as of today. The returned error is non-nil only
// for failures that prevent the pass from starting at all; entity-level
// failures are carried in the report.
func (r *Runner) Run(ctx context.Context) (RunReport, error) {
	return r.RunAsOf(ctx, DateOf(r.now()))
}

// RunAsOf executes one full pass with an explicit as-of date.
func (r *Runner) RunAsOf(ctx context.Context, asOf Date) (RunReport, error) {
	report := RunReport{StartedAt: r.now(), AsOf: asOf}
	r.log.Info("run started", zap.String("as_of", asOf.String()))

	r.promoteAll(ctx, &report)
	r.processWithdrawals(ctx, &report)
	r.accrueAll(ctx, asOf, &report)

	report.FinishedAt = r.now()
	r.log.Info("run finished",
		zap.Int("promoted", report.Promoted),
		zap.Int("withdrawals_processed", report.WithdrawalsProcessed),
		zap.Int("contracts_accrued", report.ContractsAccrued),
		zap.Int("skipped", report.Skipped),
		zap.Int("failures", len(report.Failures)),
	)
	return report, nil
}

func (r *Runner) promoteAll(ctx context.Context, report *RunReport) {
	contributions, err := r.store.UnlinkedContributions(ctx)
	if err != nil {
		report.fail(r.log, "contributions", "*", &StoreError{Op: "list unlinked contributions", Err: err})
		return
	}

	for _, contrib := range contributions {
		res, err := r.promoter.Promote(ctx, contrib)
		if err != nil {
			report.fail(r.log, "contribution", string(contrib.ID), err)
			continue
		}
		if !res.Promoted {
			report.Skipped++
			continue
		}
		report.Promoted++
		r.log.Info("contribution promoted",
			zap.String("contribution", string(contrib.ID)),
			zap.String("contract", string(res.Contract.ID)),
			zap.String("amount", contrib.Amount.String()),
		)
	}
}

func (r *Runner) processWithdrawals(ctx context.Context, report *RunReport) {
	withdrawals, err := r.store.UnprocessedWithdrawals(ctx)
	if err != nil {
		report.fail(r.log, "withdrawals", "*", &StoreError{Op: "list unprocessed withdrawals", Err: err})
		return
	}

	for _, w := range withdrawals {
		res, err := r.alloc.Process(ctx, w)
		if err != nil {
			report.fail(r.log, "withdrawal", string(w.ID), err)
			continue
		}
		report.WithdrawalsProcessed++
		if res.Shortfall().IsPositive() {
			r.log.Warn("withdrawal under-funded",
				zap.String("withdrawal", string(w.ID)),
				zap.String("requested", w.Amount.String()),
				zap.String("processed", res.Withdrawal.ProcessedAmount.String()),
				zap.String("shortfall", res.Shortfall().String()),
			)
		}
	}
}

func (r *Runner) accrueAll(ctx context.Context, asOf Date, report *RunReport) {
	assets, err := r.store.Assets(ctx)
	if err != nil {
		report.fail(r.log, "assets", "*", &StoreError{Op: "list assets", Err: err})
		return
	}

	var contracts []Contract
	for _, asset := range assets {
		if asset.Class != ClassFixedIncome {
			continue
		}
		cs, err := r.store.ContractsByAsset(ctx, asset.ID)
		if err != nil {
			report.fail(r.log, "asset", string(asset.ID), &StoreError{Op: "load contracts", Err: err})
			continue
		}
		contracts = append(contracts, cs...)
	}
	if len(contracts) == 0 {
		return
	}

	// One snapshot covers every contract's window: from the earliest
	// last-update so the inflation series reaches back far enough.
	from := asOf
	for _, c := range contracts {
		if c.LastUpdate.Before(from) {
			from = c.LastUpdate
		}
	}
	snap, err := r.rates.Snapshot(ctx, from, asOf)
	if err != nil {
		report.fail(r.log, "rates", "*", &StoreError{Op: "fetch rate snapshot", Err: err})
		return
	}

	for _, c := range contracts {
		res, err := r.accrual.Accrue(c, snap, asOf)
		if err != nil {
			report.fail(r.log, "contract", string(c.ID), err)
			continue
		}
		if !res.Applied {
			report.Skipped++
			continue
		}
		if err := r.store.UpdateContract(ctx, res.Contract); err != nil {
			report.fail(r.log, "contract", string(c.ID), &StoreError{Op: "update contract", Err: err})
			continue
		}
		report.ContractsAccrued++
		r.log.Debug("contract accrued",
			zap.String("contract", string(c.ID)),
			zap.Int("business_days", res.BusinessDays),
			zap.Float64("factor", res.Factor),
			zap.String("balance", res.Contract.Balance.String()),
		)
	}
}
