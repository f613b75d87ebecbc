// Package storetest holds behavior tests shared by every store backend.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-dashboard/internal/store"
)

// Run exercises a fresh store created by newStore for each subtest
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("PutGetList", func(t *testing.T) { testPutGetList(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("UpdateMergesFields", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("AtomicUpdateCreatesAndAborts", func(t *testing.T) { testAtomicUpdate(t, newStore(t)) })
	t.Run("AtomicUpdateConcurrent", func(t *testing.T) { testAtomicUpdateConcurrent(t, newStore(t)) })
	t.Run("BatchWrite", func(t *testing.T) { testBatchWrite(t, newStore(t)) })
	t.Run("NewID", func(t *testing.T) { testNewID(t, newStore(t)) })
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func testPutGetList(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "bills", "b1", []byte(`{"id":"b1","amount":"100"}`)))
	require.NoError(t, s.Put(ctx, "bills", "b2", []byte(`{"id":"b2","amount":"200"}`)))
	require.NoError(t, s.Put(ctx, "reports", "r1", []byte(`{"id":"r1"}`)))

	doc, err := s.Get(ctx, "bills", "b1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "b1", doc.ID)
	assert.Equal(t, "100", decode(t, doc.Data)["amount"])

	docs, err := s.ListAll(ctx, "bills")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	empty, err := s.ListAll(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testGetMissing(t *testing.T, s store.Store) {
	doc, err := s.Get(context.Background(), "bills", "nope")
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "reports", "r1", []byte(`{"id":"r1","status":"UNMATCHED","errorMessage":"x"}`)))

	require.NoError(t, s.Update(ctx, "reports", "r1", map[string]any{
		"status":       "MATCHED",
		"errorMessage": nil,
	}))

	doc, err := s.Get(ctx, "reports", "r1")
	require.NoError(t, err)
	got := decode(t, doc.Data)
	assert.Equal(t, "MATCHED", got["status"])
	assert.Equal(t, "r1", got["id"])
	_, hasMessage := got["errorMessage"]
	assert.False(t, hasMessage)

	err = s.Update(ctx, "reports", "missing", map[string]any{"status": "MATCHED"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testAtomicUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()

	out, err := s.AtomicUpdate(ctx, "transactionIndex", "TX1", func(current []byte) ([]byte, error) {
		assert.Nil(t, current)
		return []byte(`{"n":1}`), nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(out))

	// nil result is a no-op returning the current value
	out, err = s.AtomicUpdate(ctx, "transactionIndex", "TX1", func(current []byte) ([]byte, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(out))

	abort := errors.New("abort")
	_, err = s.AtomicUpdate(ctx, "transactionIndex", "TX1", func(current []byte) ([]byte, error) {
		return nil, abort
	})
	assert.ErrorIs(t, err, abort)

	doc, err := s.Get(ctx, "transactionIndex", "TX1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(doc.Data))
}

func testAtomicUpdateConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := s.AtomicUpdate(ctx, "counters", "c", func(current []byte) ([]byte, error) {
					n := 0
					if current != nil {
						var v struct{ N int }
						if err := json.Unmarshal(current, &v); err != nil {
							return nil, err
						}
						n = v.N
					}
					return []byte(fmt.Sprintf(`{"N":%d}`, n+1)), nil
				})
				if err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	doc, err := s.Get(ctx, "counters", "c")
	require.NoError(t, err)
	assert.Equal(t, float64(workers*perWorker), decode(t, doc.Data)["N"])
}

func testBatchWrite(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "reports", "r1", []byte(`{"id":"r1","adminPaidAt":"2024-01-01T00:00:00Z"}`)))
	require.NoError(t, s.Put(ctx, "merchantTransactions", "m1", []byte(`{"id":"m1"}`)))

	err := s.BatchWrite(ctx, map[string]any{
		store.FieldPath("reports", "r1", "adminPaymentStatus"): "UNPAID",
		store.FieldPath("reports", "r1", "adminPaidAt"):        nil,
		store.DocPath("adminPayments", "p1"):                   map[string]any{"id": "p1", "status": "UNPAID"},
		store.DocPath("merchantTransactions", "m1"):            nil,
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, "reports", "r1")
	require.NoError(t, err)
	got := decode(t, doc.Data)
	assert.Equal(t, "UNPAID", got["adminPaymentStatus"])
	_, hasPaidAt := got["adminPaidAt"]
	assert.False(t, hasPaidAt)

	payment, err := s.Get(ctx, "adminPayments", "p1")
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, "p1", decode(t, payment.Data)["id"])

	deleted, err := s.Get(ctx, "merchantTransactions", "m1")
	require.NoError(t, err)
	assert.Nil(t, deleted)

	err = s.BatchWrite(ctx, map[string]any{"bad": 1})
	assert.ErrorIs(t, err, store.ErrInvalidPath)
}

func testNewID(t *testing.T, s store.Store) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := s.NewID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}
