package marketdata

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/warp/portfolio-engine/fixedincome"
)

// =============================================================================
// PRICE UPDATER - Best-effort refresh of variable-income quotes
// =============================================================================

// PriceUpdater caches the latest quote on each variable-income asset.
// Best-effort: an asset whose ticker no provider knows is skipped and
// reported, never failed. Fixed-income balances are untouched.
type PriceUpdater struct {
	store   fixedincome.Store
	cascade *Cascade
	log     *zap.Logger
	now     func() time.Time
}

func NewPriceUpdater(store fixedincome.Store, cascade *Cascade, log *zap.Logger) *PriceUpdater {
	if log == nil {
		log = zap.NewNop()
	}
	return &PriceUpdater{store: store, cascade: cascade, log: log, now: time.Now}
}

// PriceReport summarizes one update pass.
type PriceReport struct {
	Updated int
	Skipped int
}

func (u *PriceUpdater) UpdateAll(ctx context.Context) (PriceReport, error) {
	assets, err := u.store.Assets(ctx)
	if err != nil {
		return PriceReport{}, &fixedincome.StoreError{Op: "list assets", Err: err}
	}

	var report PriceReport
	for _, asset := range assets {
		if asset.Class != fixedincome.ClassVariableIncome || asset.Ticker == "" {
			continue
		}

		price, provider, err := u.cascade.Quote(ctx, asset.Ticker)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Skipped++
			u.log.Warn("price not updated",
				zap.String("asset", string(asset.ID)),
				zap.String("ticker", asset.Ticker),
				zap.Error(err),
			)
			continue
		}
		if err := u.store.UpdateAssetPrice(ctx, asset.ID, price, u.now()); err != nil {
			if errors.Is(err, fixedincome.ErrNotFound) {
				report.Skipped++
				continue
			}
			return report, &fixedincome.StoreError{Op: "update asset price", Err: err}
		}

		report.Updated++
		u.log.Info("price updated",
			zap.String("asset", string(asset.ID)),
			zap.String("ticker", asset.Ticker),
			zap.String("price", price.String()),
			zap.String("provider", provider),
		)
	}
	return report, nil
}
