package txindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/store"
	"recon-dashboard/internal/store/memory"
)

func newTestIndex(t *testing.T) (*Index, store.Store) {
	t.Helper()
	ids, err := store.NewIDGenerator(1)
	require.NoError(t, err)
	s := memory.New(ids)
	return New(s), s
}

func TestReserveForBill_CreatesEntry(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	entry, err := x.ReserveForBill(ctx, " TX.001 ", "bill-1")
	require.NoError(t, err)
	assert.Equal(t, "TX_001", entry.TransactionCode)
	assert.Equal(t, "bill-1", entry.UserBillID)
	assert.NotEmpty(t, entry.ReportRecordID)

	found, err := x.Lookup(ctx, "TX.001")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, entry.ReportRecordID, found.ReportRecordID)
}

func TestReserveForBill_RejectsSecondBill(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	first, err := x.ReserveForBill(ctx, "TX004", "bill-1")
	require.NoError(t, err)

	_, err = x.ReserveForBill(ctx, "TX004", "bill-2")
	require.Error(t, err)

	var dup *domain.DuplicateBillError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "TX004", dup.TransactionCode)
	assert.Equal(t, "bill-1", dup.ExistingBillID)
	assert.Equal(t, first.ReportRecordID, dup.ReportRecordID)

	entry, err := x.Lookup(ctx, "TX004")
	require.NoError(t, err)
	assert.Equal(t, "bill-1", entry.UserBillID)
}

func TestReserveForBill_SameBillIsIdempotent(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	first, err := x.ReserveForBill(ctx, "TX005", "bill-1")
	require.NoError(t, err)
	again, err := x.ReserveForBill(ctx, "TX005", "bill-1")
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestReserveForBill_AttachesToMerchantEntry(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	merchant, err := x.ReserveForMerchant(ctx, "TX006", "m-1")
	require.NoError(t, err)

	bill, err := x.ReserveForBill(ctx, "TX006", "bill-1")
	require.NoError(t, err)
	assert.Equal(t, merchant.ReportRecordID, bill.ReportRecordID)
	assert.Equal(t, "m-1", bill.MerchantTransactionID)
	assert.Equal(t, "bill-1", bill.UserBillID)
}

func TestReserveForMerchant_FirstWriterWins(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	first, err := x.ReserveForMerchant(ctx, "TX007", "m-1")
	require.NoError(t, err)

	second, err := x.ReserveForMerchant(ctx, "TX007", "m-2")
	require.NoError(t, err)
	assert.Equal(t, "m-1", second.MerchantTransactionID)
	assert.Equal(t, first.ReportRecordID, second.ReportRecordID)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestReserve_Validation(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"bill empty code", func() error { _, err := x.ReserveForBill(ctx, "   ", "b"); return err }},
		{"bill empty id", func() error { _, err := x.ReserveForBill(ctx, "TX", ""); return err }},
		{"merchant empty code", func() error { _, err := x.ReserveForMerchant(ctx, "", "m"); return err }},
		{"merchant empty id", func() error { _, err := x.ReserveForMerchant(ctx, "TX", ""); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, domain.IsValidation(tt.call()))
		})
	}
}

func TestReleaseBill(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := x.ReserveForBill(ctx, "TX008", "bill-1")
	require.NoError(t, err)

	// another bill's release is ignored
	require.NoError(t, x.ReleaseBill(ctx, "TX008", "bill-9"))
	entry, err := x.Lookup(ctx, "TX008")
	require.NoError(t, err)
	assert.Equal(t, "bill-1", entry.UserBillID)

	require.NoError(t, x.ReleaseBill(ctx, "TX008", "bill-1"))
	_, err = x.ReserveForBill(ctx, "TX008", "bill-2")
	assert.NoError(t, err)

	assert.NoError(t, x.ReleaseBill(ctx, "UNKNOWN", "bill-1"))
}

func TestRepointMerchant(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	first, err := x.ReserveForMerchant(ctx, "TX009", "m-old")
	require.NoError(t, err)

	moved, err := x.RepointMerchant(ctx, "TX009", "m-new")
	require.NoError(t, err)
	assert.Equal(t, "m-new", moved.MerchantTransactionID)
	assert.Equal(t, first.ReportRecordID, moved.ReportRecordID)
}

func TestLookup_Missing(t *testing.T) {
	x, _ := newTestIndex(t)

	entry, err := x.Lookup(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestReserveForBill_ConcurrentSingleWinner(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		winners    []string
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			billID := fmt.Sprintf("bill-%d", i)
			_, err := x.ReserveForBill(ctx, "TX-RACE", billID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, billID)
				return
			}
			if domain.IsDuplicateBill(err) {
				duplicates++
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, workers-1, duplicates)

	entry, err := x.Lookup(ctx, "TX-RACE")
	require.NoError(t, err)
	assert.Equal(t, winners[0], entry.UserBillID)
}

func TestReserveForMerchant_ConcurrentSingleIdentity(t *testing.T) {
	x, _ := newTestIndex(t)
	ctx := context.Background()

	const workers = 16
	reportIDs := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := x.ReserveForMerchant(ctx, "TX-M", fmt.Sprintf("m-%d", i))
			if assert.NoError(t, err) {
				reportIDs[i] = entry.ReportRecordID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range reportIDs {
		assert.Equal(t, reportIDs[0], id)
	}
}
