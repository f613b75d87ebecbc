package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"recon-dashboard/internal/config"
	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/export"
	"recon-dashboard/internal/matcher"
	"recon-dashboard/internal/metrics"
	"recon-dashboard/internal/projection"
	"recon-dashboard/internal/repository"
	"recon-dashboard/internal/txindex"
	"recon-dashboard/pkg/logger"
)

type ReportService interface {
	Project(ctx context.Context, filter domain.ReportFilter) (*domain.ReportPage, error)
	Summary(ctx context.Context, filter domain.ReportFilter) (*domain.ReportSummary, error)
	Export(ctx context.Context, filter domain.ReportFilter, w io.Writer) error
	// Materialize persists a virtual record under the report id its code is
	// reserved with. Persisted records are returned as they are.
	Materialize(ctx context.Context, id string) (*domain.ReportRecord, error)
	ManualEdit(ctx context.Context, id string, edit domain.ReportEdit) (*domain.ReportRecord, error)
	Lookup(ctx context.Context, code string) (*domain.TransactionIndexEntry, error)
}

type reportService struct {
	bills     repository.BillRepository
	merchants repository.MerchantTransactionRepository
	reports   repository.ReportRepository
	index     *txindex.Index
	matching  *config.MatchingConfigHolder
	metrics   *metrics.Metrics
	loader    *snapshotLoader
	now       func() time.Time
}

func NewReportService(
	bills repository.BillRepository,
	merchants repository.MerchantTransactionRepository,
	reports repository.ReportRepository,
	index *txindex.Index,
	matching *config.MatchingConfigHolder,
	m *metrics.Metrics,
) ReportService {
	return &reportService{
		bills:     bills,
		merchants: merchants,
		reports:   reports,
		index:     index,
		matching:  matching,
		metrics:   m,
		loader:    &snapshotLoader{bills: bills, merchants: merchants, reports: reports},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *reportService) Project(ctx context.Context, filter domain.ReportFilter) (*domain.ReportPage, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	started := time.Now()
	snap, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	_, projector := matching(s.matching)
	page := projector.Project(filter, snap)
	s.metrics.ObserveProjection(time.Since(started))

	logger.GetLogger().WithFields(map[string]interface{}{
		"total":    page.Total,
		"returned": len(page.Items),
	}).Debug("Report records projected")
	return &page, nil
}

func (s *reportService) Summary(ctx context.Context, filter domain.ReportFilter) (*domain.ReportSummary, error) {
	rows, err := s.filteredRows(ctx, filter)
	if err != nil {
		return nil, err
	}
	summary := projection.Summarize(rows)
	return &summary, nil
}

// Export writes every row matching the filter, ignoring pagination
func (s *reportService) Export(ctx context.Context, filter domain.ReportFilter, w io.Writer) error {
	rows, err := s.filteredRows(ctx, filter)
	if err != nil {
		return err
	}
	if err := export.WriteReports(w, rows); err != nil {
		return fmt.Errorf("failed to write report export: %w", err)
	}
	logger.GetLogger().WithField("rows", len(rows)).Info("Report export written")
	return nil
}

func (s *reportService) filteredRows(ctx context.Context, filter domain.ReportFilter) ([]projection.Row, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	started := time.Now()
	snap, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	_, projector := matching(s.matching)
	rows := projection.Filter(projector.Merge(snap), filter)
	projection.SortRows(rows)
	s.metrics.ObserveProjection(time.Since(started))
	return rows, nil
}

func (s *reportService) Materialize(ctx context.Context, id string) (*domain.ReportRecord, error) {
	merchantID, virtual := domain.MerchantIDFromVirtual(id)
	if !virtual {
		return s.reports.GetByID(ctx, id)
	}

	merchant, err := s.merchants.GetByID(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	code := domain.NormalizeCode(merchant.TransactionCode)
	if code == "" {
		return nil, domain.NewValidationError("transactionCode", "merchant row has no transaction code")
	}

	entry, err := s.index.ReserveForMerchant(ctx, code, merchant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve transaction code: %w", err)
	}

	existing, err := s.reports.GetByID(ctx, entry.ReportRecordID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load report record: %w", err)
	}

	var record domain.ReportRecord
	if existing != nil {
		record, err = s.attachMerchant(ctx, *existing, *merchant)
		if err != nil {
			return nil, err
		}
	} else {
		record, err = s.projectedVirtual(ctx, id, *merchant)
		if err != nil {
			return nil, err
		}
		record.ID = entry.ReportRecordID
	}

	if err := s.reports.Save(ctx, &record); err != nil {
		return nil, fmt.Errorf("failed to save report record: %w", err)
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"virtual_id": id,
		"report_id":  record.ID,
		"status":     record.Status,
	}).Info("Virtual report record materialized")
	return &record, nil
}

// attachMerchant merges a merchant row into a persisted bill-side record and
// recomputes its outcome unless an admin has overridden it.
func (s *reportService) attachMerchant(ctx context.Context, record domain.ReportRecord, merchant domain.MerchantTransaction) (domain.ReportRecord, error) {
	if record.MerchantTransactionID != "" && record.MerchantTransactionID != merchant.ID {
		return record, nil
	}
	matcher.ApplyMerchant(&record, merchant)

	var bill *domain.BillRecord
	if record.UserBillID != "" {
		b, err := s.bills.GetByID(ctx, record.UserBillID)
		switch {
		case err == nil:
			bill = b
		case !errors.Is(err, domain.ErrNotFound):
			return record, fmt.Errorf("failed to load bill: %w", err)
		}
	}
	if !record.IsManuallyEdited {
		engine, _ := matching(s.matching)
		outcome := engine.Match(bill, &merchant)
		record.SetStatus(outcome.Status, outcome.ErrorMessage)
	}
	return record, nil
}

// projectedVirtual returns the row the projection shows for the virtual id, or
// a merchant-only record when the row is no longer projected.
func (s *reportService) projectedVirtual(ctx context.Context, id string, merchant domain.MerchantTransaction) (domain.ReportRecord, error) {
	snap, err := s.loader.Load(ctx)
	if err != nil {
		return domain.ReportRecord{}, err
	}
	engine, projector := matching(s.matching)
	if row, ok := projection.FindByID(projector.Merge(snap), id); ok {
		return row.Record, nil
	}
	return engine.BuildRecord(id, nil, &merchant, merchant.CreatedAt), nil
}

// ManualEdit overrides a record's outcome or bill-side fields and stamps the
// audit trail. Virtual records are materialized first.
func (s *reportService) ManualEdit(ctx context.Context, id string, edit domain.ReportEdit) (*domain.ReportRecord, error) {
	if err := validateEdit(edit); err != nil {
		return nil, err
	}

	record, err := s.Materialize(ctx, id)
	if err != nil {
		return nil, err
	}

	var edited []string
	if edit.Status != nil {
		message := record.ErrorMessage
		if edit.ErrorMessage != nil {
			message = *edit.ErrorMessage
		} else if *edit.Status == domain.StatusMatched {
			message = ""
		}
		record.SetStatus(*edit.Status, message)
		edited = append(edited, "status", "reconciliationStatus")
	} else if edit.ErrorMessage != nil {
		record.ErrorMessage = *edit.ErrorMessage
	}
	if edit.ErrorMessage != nil {
		edited = append(edited, "errorMessage")
	}
	if edit.Amount != nil {
		amount := *edit.Amount
		record.Amount = &amount
		edited = append(edited, "amount")
	}
	if edit.PointOfSaleName != nil {
		record.PointOfSaleName = *edit.PointOfSaleName
		edited = append(edited, "pointOfSaleName")
	}
	if edit.PaymentMethod != nil {
		record.PaymentMethod = *edit.PaymentMethod
		edited = append(edited, "paymentMethod")
	}

	now := s.now()
	record.IsManuallyEdited = true
	record.EditedFields = mergeFieldNames(record.EditedFields, edited)
	record.ReconciledBy = edit.EditedBy
	record.ReconciledAt = &now

	if err := s.reports.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save report record: %w", err)
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"report_id": record.ID,
		"edited_by": edit.EditedBy,
		"fields":    edited,
	}).Info("Report record edited")
	return record, nil
}

func (s *reportService) Lookup(ctx context.Context, code string) (*domain.TransactionIndexEntry, error) {
	if !domain.ValidCode(code) {
		return nil, domain.NewValidationError("transactionCode", "must not be empty")
	}
	entry, err := s.index.Lookup(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up transaction code: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrNotFound
	}
	return entry, nil
}

func validateFilter(filter domain.ReportFilter) error {
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.NewValidationError("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return domain.NewValidationError("from", "must not be after to")
	}
	if filter.Limit < 0 {
		return domain.NewValidationError("limit", "must not be negative")
	}
	return nil
}

func validateEdit(edit domain.ReportEdit) error {
	if edit.EditedBy == "" {
		return domain.NewValidationError("editedBy", "is required")
	}
	if edit.Status != nil && !edit.Status.Valid() {
		return domain.NewValidationError("status", fmt.Sprintf("unknown status %q", *edit.Status))
	}
	if edit.Amount != nil && !edit.Amount.IsPositive() {
		return domain.NewValidationError("amount", "must be positive")
	}
	if edit.PaymentMethod != nil && !edit.PaymentMethod.Valid() {
		return domain.NewValidationError("paymentMethod", fmt.Sprintf("unknown method %q", *edit.PaymentMethod))
	}
	if edit.Status == nil && edit.ErrorMessage == nil && edit.Amount == nil &&
		edit.PointOfSaleName == nil && edit.PaymentMethod == nil {
		return domain.NewValidationError("body", "no fields to edit")
	}
	return nil
}

func mergeFieldNames(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, name := range append(append([]string{}, existing...), added...) {
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
