package repository

import (
	"context"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/store"
	"recon-dashboard/pkg/logger"
)

type ReportRepository interface {
	Save(ctx context.Context, report *domain.ReportRecord) error
	GetByID(ctx context.Context, id string) (*domain.ReportRecord, error)
	List(ctx context.Context) ([]domain.ReportRecord, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

type reportRepository struct {
	store store.Store
}

func NewReportRepository(s store.Store) ReportRepository {
	return &reportRepository{store: s}
}

// Save writes the whole record under its id
func (r *reportRepository) Save(ctx context.Context, report *domain.ReportRecord) error {
	if report.IsVirtual() {
		return domain.NewValidationError("id", "virtual records are never persisted as such")
	}
	if err := put(ctx, r.store, store.CollectionReports, report.ID, report); err != nil {
		logger.GetLogger().WithError(err).WithField("report_id", report.ID).Error("Failed to save report record")
		return err
	}
	return nil
}

func (r *reportRepository) GetByID(ctx context.Context, id string) (*domain.ReportRecord, error) {
	return getByID[domain.ReportRecord](ctx, r.store, store.CollectionReports, id)
}

func (r *reportRepository) List(ctx context.Context) ([]domain.ReportRecord, error) {
	return listAll[domain.ReportRecord](ctx, r.store, store.CollectionReports)
}

func (r *reportRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	return update(ctx, r.store, store.CollectionReports, id, fields)
}

func (r *reportRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.BatchWrite(ctx, map[string]any{store.DocPath(store.CollectionReports, id): nil}); err != nil {
		logger.GetLogger().WithError(err).WithField("report_id", id).Error("Failed to delete report record")
		return err
	}
	return nil
}
