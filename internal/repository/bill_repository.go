package repository

import (
	"context"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/store"
	"recon-dashboard/pkg/logger"
)

type BillRepository interface {
	// NextID hands out an id before the bill is written, so the index can be
	// reserved first.
	NextID() string
	Create(ctx context.Context, bill *domain.BillRecord) error
	GetByID(ctx context.Context, id string) (*domain.BillRecord, error)
	List(ctx context.Context) ([]domain.BillRecord, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

type billRepository struct {
	store store.Store
}

func NewBillRepository(s store.Store) BillRepository {
	return &billRepository{store: s}
}

func (r *billRepository) NextID() string {
	return r.store.NewID()
}

func (r *billRepository) Create(ctx context.Context, bill *domain.BillRecord) error {
	if bill.ID == "" {
		bill.ID = r.store.NewID()
	}
	if err := put(ctx, r.store, store.CollectionBills, bill.ID, bill); err != nil {
		logger.GetLogger().WithError(err).WithField("bill_id", bill.ID).Error("Failed to create bill")
		return err
	}
	return nil
}

func (r *billRepository) GetByID(ctx context.Context, id string) (*domain.BillRecord, error) {
	return getByID[domain.BillRecord](ctx, r.store, store.CollectionBills, id)
}

func (r *billRepository) List(ctx context.Context) ([]domain.BillRecord, error) {
	return listAll[domain.BillRecord](ctx, r.store, store.CollectionBills)
}

func (r *billRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	return update(ctx, r.store, store.CollectionBills, id, fields)
}

func (r *billRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.BatchWrite(ctx, map[string]any{store.DocPath(store.CollectionBills, id): nil}); err != nil {
		logger.GetLogger().WithError(err).WithField("bill_id", id).Error("Failed to delete bill")
		return err
	}
	return nil
}
