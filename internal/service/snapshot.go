package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"recon-dashboard/internal/config"
	"recon-dashboard/internal/matcher"
	"recon-dashboard/internal/projection"
	"recon-dashboard/internal/repository"
)

// snapshotLoader reads the three collections a projection pass needs
type snapshotLoader struct {
	bills     repository.BillRepository
	merchants repository.MerchantTransactionRepository
	reports   repository.ReportRepository
}

// Load reads bills, merchant rows and persisted reports in parallel. Any read
// failure aborts the whole snapshot.
func (l *snapshotLoader) Load(ctx context.Context) (projection.Snapshot, error) {
	var snap projection.Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		bills, err := l.bills.List(gctx)
		if err != nil {
			return fmt.Errorf("failed to load bills: %w", err)
		}
		snap.Bills = bills
		return nil
	})
	g.Go(func() error {
		merchants, err := l.merchants.List(gctx)
		if err != nil {
			return fmt.Errorf("failed to load merchant transactions: %w", err)
		}
		snap.Merchants = merchants
		return nil
	})
	g.Go(func() error {
		reports, err := l.reports.List(gctx)
		if err != nil {
			return fmt.Errorf("failed to load report records: %w", err)
		}
		snap.Reports = reports
		return nil
	})

	if err := g.Wait(); err != nil {
		return projection.Snapshot{}, err
	}
	return snap, nil
}

// matching builds the engine and projector from the latest matching config
func matching(holder *config.MatchingConfigHolder) (*matcher.Engine, *projection.Projector) {
	cfg := config.DefaultMatchingConfig()
	if holder != nil {
		cfg = holder.Get()
	}
	engine := matcher.NewEngine(cfg.AmountTolerance)
	return engine, projection.New(engine, cfg.DefaultLimit, cfg.MaxLimit)
}
