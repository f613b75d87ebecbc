// Package txindex arbitrates the single report identity of every transaction code.
package txindex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/store"
	"recon-dashboard/pkg/logger"
)

// Index is the transaction code index. Each entry lives under the normalized
// code in the transactionIndex collection and is only ever changed through
// the store's single-key compare-and-set.
type Index struct {
	store       store.Store
	now         func() time.Time
	newReportID func() string
}

func New(s store.Store) *Index {
	return &Index{
		store:       s,
		now:         func() time.Time { return time.Now().UTC() },
		newReportID: func() string { return uuid.New().String() },
	}
}

// ReserveForBill binds billID to code. A code already bound to another bill
// is rejected with a *domain.DuplicateBillError; re-reserving the same bill
// is idempotent.
func (x *Index) ReserveForBill(ctx context.Context, code, billID string) (*domain.TransactionIndexEntry, error) {
	key := domain.NormalizeCode(code)
	if key == "" {
		return nil, domain.NewValidationError("transactionCode", "must not be empty")
	}
	if billID == "" {
		return nil, domain.NewValidationError("billId", "must not be empty")
	}

	entry, err := x.update(ctx, key, func(current *domain.TransactionIndexEntry) (*domain.TransactionIndexEntry, error) {
		if current == nil {
			return x.newEntry(key, billID, ""), nil
		}
		if current.UserBillID == billID {
			return nil, nil
		}
		if current.UserBillID != "" {
			return nil, &domain.DuplicateBillError{
				TransactionCode: key,
				ExistingBillID:  current.UserBillID,
				ReportRecordID:  current.ReportRecordID,
			}
		}
		current.UserBillID = billID
		current.UpdatedAt = x.now()
		return current, nil
	})
	if err != nil {
		if domain.IsDuplicateBill(err) {
			logger.GetLogger().WithFields(logrus.Fields{
				"transaction_code": key,
				"bill_id":          billID,
			}).Warn("Rejected duplicate bill for transaction code")
		}
		return nil, err
	}
	return entry, nil
}

// ReserveForMerchant binds merchantID to code. A code that already has a
// merchant keeps it and the call returns the entry unchanged.
func (x *Index) ReserveForMerchant(ctx context.Context, code, merchantID string) (*domain.TransactionIndexEntry, error) {
	key := domain.NormalizeCode(code)
	if key == "" {
		return nil, domain.NewValidationError("transactionCode", "must not be empty")
	}
	if merchantID == "" {
		return nil, domain.NewValidationError("merchantTransactionId", "must not be empty")
	}

	return x.update(ctx, key, func(current *domain.TransactionIndexEntry) (*domain.TransactionIndexEntry, error) {
		if current == nil {
			return x.newEntry(key, "", merchantID), nil
		}
		if current.MerchantTransactionID != "" {
			return nil, nil
		}
		current.MerchantTransactionID = merchantID
		current.UpdatedAt = x.now()
		return current, nil
	})
}

// ReleaseBill undoes a bill reservation whose bill could not be persisted.
// Entries bound to a different bill are left alone.
func (x *Index) ReleaseBill(ctx context.Context, code, billID string) error {
	key := domain.NormalizeCode(code)
	if key == "" {
		return nil
	}
	_, err := x.update(ctx, key, func(current *domain.TransactionIndexEntry) (*domain.TransactionIndexEntry, error) {
		if current == nil || current.UserBillID != billID {
			return nil, nil
		}
		current.UserBillID = ""
		current.UpdatedAt = x.now()
		return current, nil
	})
	return err
}

// RepointMerchant moves an entry to merchantID. Only the dedupe pass uses it,
// after the merchant row the entry pointed at has been removed.
func (x *Index) RepointMerchant(ctx context.Context, code, merchantID string) (*domain.TransactionIndexEntry, error) {
	key := domain.NormalizeCode(code)
	if key == "" {
		return nil, domain.NewValidationError("transactionCode", "must not be empty")
	}
	return x.update(ctx, key, func(current *domain.TransactionIndexEntry) (*domain.TransactionIndexEntry, error) {
		if current == nil {
			return x.newEntry(key, "", merchantID), nil
		}
		if current.MerchantTransactionID == merchantID {
			return nil, nil
		}
		current.MerchantTransactionID = merchantID
		current.UpdatedAt = x.now()
		return current, nil
	})
}

// Lookup returns the entry for code, or nil when the code was never reserved
func (x *Index) Lookup(ctx context.Context, code string) (*domain.TransactionIndexEntry, error) {
	key := domain.NormalizeCode(code)
	if key == "" {
		return nil, nil
	}
	doc, err := x.store.Get(ctx, store.CollectionIndex, key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return decode(doc.Data)
}

func (x *Index) newEntry(key, billID, merchantID string) *domain.TransactionIndexEntry {
	now := x.now()
	return &domain.TransactionIndexEntry{
		TransactionCode:       key,
		ReportRecordID:        x.newReportID(),
		UserBillID:            billID,
		MerchantTransactionID: merchantID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// update runs mutate inside the store's compare-and-set loop. mutate returning
// a nil entry leaves the stored entry as it is.
func (x *Index) update(
	ctx context.Context,
	key string,
	mutate func(current *domain.TransactionIndexEntry) (*domain.TransactionIndexEntry, error),
) (*domain.TransactionIndexEntry, error) {
	data, err := x.store.AtomicUpdate(ctx, store.CollectionIndex, key, func(current []byte) ([]byte, error) {
		var entry *domain.TransactionIndexEntry
		if current != nil {
			decoded, err := decode(current)
			if err != nil {
				return nil, err
			}
			entry = decoded
		}
		next, err := mutate(entry)
		if err != nil || next == nil {
			return nil, err
		}
		return json.Marshal(next)
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return decode(data)
}

func decode(data []byte) (*domain.TransactionIndexEntry, error) {
	var entry domain.TransactionIndexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode index entry: %w", err)
	}
	return &entry, nil
}
