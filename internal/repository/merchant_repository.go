package repository

import (
	"context"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/store"
	"recon-dashboard/pkg/logger"
)

type MerchantTransactionRepository interface {
	BulkCreate(ctx context.Context, transactions []domain.MerchantTransaction) error
	GetByID(ctx context.Context, id string) (*domain.MerchantTransaction, error)
	List(ctx context.Context) ([]domain.MerchantTransaction, error)
	// ListByCode returns rows whose normalized transaction code equals code
	ListByCode(ctx context.Context, code string) ([]domain.MerchantTransaction, error)
	DeleteMany(ctx context.Context, ids []string) error
}

type merchantTransactionRepository struct {
	store     store.Store
	batchSize int
}

func NewMerchantTransactionRepository(s store.Store, batchSize int) MerchantTransactionRepository {
	return &merchantTransactionRepository{store: s, batchSize: batchSize}
}

// BulkCreate assigns missing ids and writes the rows in batches
func (r *merchantTransactionRepository) BulkCreate(ctx context.Context, transactions []domain.MerchantTransaction) error {
	if len(transactions) == 0 {
		return nil
	}
	for i := range transactions {
		if transactions[i].ID == "" {
			transactions[i].ID = r.store.NewID()
		}
	}
	err := batchPut(ctx, r.store, store.CollectionMerchants, transactions, func(tx domain.MerchantTransaction) string {
		return tx.ID
	}, r.batchSize)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("count", len(transactions)).Error("Failed to bulk create merchant transactions")
		return err
	}
	return nil
}

func (r *merchantTransactionRepository) GetByID(ctx context.Context, id string) (*domain.MerchantTransaction, error) {
	return getByID[domain.MerchantTransaction](ctx, r.store, store.CollectionMerchants, id)
}

func (r *merchantTransactionRepository) List(ctx context.Context) ([]domain.MerchantTransaction, error) {
	return listAll[domain.MerchantTransaction](ctx, r.store, store.CollectionMerchants)
}

func (r *merchantTransactionRepository) ListByCode(ctx context.Context, code string) ([]domain.MerchantTransaction, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	key := domain.NormalizeCode(code)
	var out []domain.MerchantTransaction
	for _, tx := range all {
		if domain.NormalizeCode(tx.TransactionCode) == key {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (r *merchantTransactionRepository) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	writes := make(map[string]any, len(ids))
	for _, id := range ids {
		writes[store.DocPath(store.CollectionMerchants, id)] = nil
	}
	if err := r.store.BatchWrite(ctx, writes); err != nil {
		logger.GetLogger().WithError(err).WithField("count", len(ids)).Error("Failed to delete merchant transactions")
		return err
	}
	return nil
}
