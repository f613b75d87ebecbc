package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"recon-dashboard/internal/config"
	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/lock"
	"recon-dashboard/internal/metrics"
	"recon-dashboard/internal/parser"
	"recon-dashboard/internal/repository"
	"recon-dashboard/internal/txindex"
	"recon-dashboard/pkg/logger"
)

// merchantAdminLock serializes imports with dedupe passes
const merchantAdminLock = "merchant-transactions"

// ErrAdminPassRunning is returned when another import or dedupe holds the lock
var ErrAdminPassRunning = errors.New("another merchant import or dedupe is running")

type MerchantImportService interface {
	Import(ctx context.Context, filePaths []string) ([]domain.ImportResult, error)
	Dedupe(ctx context.Context) (*domain.DedupeResult, error)
	List(ctx context.Context, code string) ([]domain.MerchantTransaction, error)
}

type merchantImportService struct {
	merchants repository.MerchantTransactionRepository
	reports   repository.ReportRepository
	index     *txindex.Index
	locker    lock.Locker
	matching  *config.MatchingConfigHolder
	metrics   *metrics.Metrics
	opts      parser.Options
	batchSize int
	now       func() time.Time
}

func NewMerchantImportService(
	merchants repository.MerchantTransactionRepository,
	reports repository.ReportRepository,
	index *txindex.Index,
	locker lock.Locker,
	matching *config.MatchingConfigHolder,
	m *metrics.Metrics,
	opts parser.Options,
	batchSize int,
) MerchantImportService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &merchantImportService{
		merchants: merchants,
		reports:   reports,
		index:     index,
		locker:    locker,
		matching:  matching,
		metrics:   m,
		opts:      opts,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Import parses each settlement file, stores its rows and reserves their codes.
// Malformed rows are skipped; a file that cannot be read stops the import and
// the results of the files already imported are returned with the error.
func (s *merchantImportService) Import(ctx context.Context, filePaths []string) ([]domain.ImportResult, error) {
	if len(filePaths) == 0 {
		return nil, domain.NewValidationError("files", "at least one settlement file is required")
	}

	release, err := s.obtain(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	results := make([]domain.ImportResult, 0, len(filePaths))
	for _, path := range filePaths {
		result, err := s.importFile(ctx, path)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("file", path).Error("Failed to import settlement file")
			return results, fmt.Errorf("failed to import %s: %w", filepath.Base(path), err)
		}
		results = append(results, *result)
	}
	return results, nil
}

func (s *merchantImportService) importFile(ctx context.Context, path string) (*domain.ImportResult, error) {
	p, err := parser.ForFile(path, s.opts)
	if err != nil {
		return nil, domain.NewValidationError("file", err.Error())
	}

	result := &domain.ImportResult{File: filepath.Base(path)}
	stats, err := p.Parse(path, s.batchSize, func(batch []domain.MerchantTransaction) error {
		now := s.now()
		for i := range batch {
			batch[i].SourceFile = result.File
			batch[i].CreatedAt = now
		}
		if err := s.merchants.BulkCreate(ctx, batch); err != nil {
			return fmt.Errorf("failed to store merchant transactions: %w", err)
		}
		for _, tx := range batch {
			if _, err := s.index.ReserveForMerchant(ctx, tx.TransactionCode, tx.ID); err != nil {
				if domain.IsValidation(err) {
					logger.GetLogger().WithError(err).WithField("merchant_transaction_id", tx.ID).Warn("Skipping index reservation")
					continue
				}
				return fmt.Errorf("failed to reserve transaction code %s: %w", tx.TransactionCode, err)
			}
			result.IDs = append(result.IDs, tx.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Imported = stats.Parsed
	result.Skipped = stats.Skipped
	s.metrics.ObserveImport(result.Imported, result.Skipped)

	logger.GetLogger().WithFields(map[string]interface{}{
		"file":     result.File,
		"imported": result.Imported,
		"skipped":  result.Skipped,
	}).Info("Settlement file imported")
	return result, nil
}

// Dedupe keeps the newest merchant row per code and removes the others. Index
// entries and persisted reports pointing at a removed row are moved to the
// kept one.
func (s *merchantImportService) Dedupe(ctx context.Context) (*domain.DedupeResult, error) {
	release, err := s.obtain(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	all, err := s.merchants.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant transactions: %w", err)
	}

	byCode := make(map[string][]domain.MerchantTransaction)
	for _, tx := range all {
		code := domain.NormalizeCode(tx.TransactionCode)
		if code == "" {
			continue
		}
		byCode[code] = append(byCode[code], tx)
	}

	result := &domain.DedupeResult{}
	keptFor := make(map[string]string)
	var removed []string
	codes := make([]string, 0, len(byCode))
	for code, rows := range byCode {
		if len(rows) > 1 {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	for _, code := range codes {
		rows := byCode[code]
		sort.Slice(rows, func(i, j int) bool {
			if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
				return rows[i].CreatedAt.After(rows[j].CreatedAt)
			}
			return rows[i].ID > rows[j].ID
		})
		kept := rows[0]
		if _, err := s.index.RepointMerchant(ctx, code, kept.ID); err != nil {
			return nil, fmt.Errorf("failed to repoint transaction code %s: %w", code, err)
		}
		for _, dup := range rows[1:] {
			keptFor[dup.ID] = kept.ID
			removed = append(removed, dup.ID)
		}
		result.Codes++
	}

	if len(removed) == 0 {
		return result, nil
	}

	reports, err := s.reports.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load report records: %w", err)
	}
	for _, r := range reports {
		keptID, ok := keptFor[r.MerchantTransactionID]
		if !ok {
			continue
		}
		if err := s.reports.Update(ctx, r.ID, map[string]any{"merchantTransactionId": keptID}); err != nil {
			return nil, fmt.Errorf("failed to repoint report record %s: %w", r.ID, err)
		}
		result.ReportsUpdated++
	}

	if err := s.merchants.DeleteMany(ctx, removed); err != nil {
		return nil, fmt.Errorf("failed to delete duplicate merchant transactions: %w", err)
	}
	result.Removed = len(removed)
	s.metrics.ObserveDedupe(result.Removed)

	logger.GetLogger().WithFields(map[string]interface{}{
		"codes":           result.Codes,
		"removed":         result.Removed,
		"reports_updated": result.ReportsUpdated,
	}).Info("Merchant transactions deduplicated")
	return result, nil
}

func (s *merchantImportService) List(ctx context.Context, code string) ([]domain.MerchantTransaction, error) {
	if code != "" {
		return s.merchants.ListByCode(ctx, code)
	}
	return s.merchants.List(ctx)
}

func (s *merchantImportService) obtain(ctx context.Context) (func(), error) {
	ttl := config.DefaultMatchingConfig().AdminLockTTL
	if s.matching != nil {
		ttl = s.matching.Get().AdminLockTTL
	}
	lease, err := s.locker.Obtain(ctx, merchantAdminLock, ttl)
	if errors.Is(err, lock.ErrNotObtained) {
		return nil, ErrAdminPassRunning
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain admin lock: %w", err)
	}
	return func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.GetLogger().WithError(err).Warn("Failed to release admin lock")
		}
	}, nil
}
