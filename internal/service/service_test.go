package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-dashboard/internal/config"
	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/lock"
	"recon-dashboard/internal/matcher"
	"recon-dashboard/internal/ocr/mocks"
	"recon-dashboard/internal/parser"
	"recon-dashboard/internal/repository"
	"recon-dashboard/internal/store"
	"recon-dashboard/internal/store/memory"
	"recon-dashboard/internal/txindex"
)

type testEnv struct {
	store     store.Store
	bills     repository.BillRepository
	merchants repository.MerchantTransactionRepository
	reports   repository.ReportRepository
	payments  repository.PaymentRepository
	index     *txindex.Index
	locker    *lock.LocalLocker
	extractor *mocks.MockExtractor

	billSvc     BillService
	reportSvc   ReportService
	merchantSvc MerchantImportService
	paymentSvc  PaymentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ids, err := store.NewIDGenerator(1)
	require.NoError(t, err)
	s := memory.New(ids)

	env := &testEnv{
		store:     s,
		bills:     repository.NewBillRepository(s),
		merchants: repository.NewMerchantTransactionRepository(s, 2),
		reports:   repository.NewReportRepository(s),
		payments:  repository.NewPaymentRepository(s),
		index:     txindex.New(s),
		locker:    lock.NewLocalLocker(),
		extractor: mocks.NewMockExtractor(gomock.NewController(t)),
	}
	matching := config.NewStaticMatchingConfig(config.DefaultMatchingConfig())

	env.billSvc = NewBillService(env.bills, env.merchants, env.reports, env.index, env.extractor, matching, nil, 50*time.Millisecond)
	env.reportSvc = NewReportService(env.bills, env.merchants, env.reports, env.index, matching, nil)
	env.merchantSvc = NewMerchantImportService(env.merchants, env.reports, env.index, env.locker, matching, nil, parser.Options{}, 2)
	env.paymentSvc = NewPaymentService(s, env.payments, env.reports, env.bills, env.merchants, env.reportSvc, nil)
	return env
}

func billRequest(owner, code string, value int64, pos string) SubmitBillRequest {
	return SubmitBillRequest{
		OwnerUserID:     owner,
		AgentID:         "agent-1",
		TransactionCode: code,
		Amount:          decimal.NewFromInt(value),
		PaymentMethod:   domain.MethodQRCode,
		PointOfSaleName: pos,
	}
}

// writeSettlement writes a CSV settlement file with one row per entry
func writeSettlement(t *testing.T, name string, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	content := "transaction_code,amount,point_of_sale\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (e *testEnv) importRows(t *testing.T, rows ...string) []domain.ImportResult {
	t.Helper()
	results, err := e.merchantSvc.Import(context.Background(), []string{writeSettlement(t, "settlement.csv", rows...)})
	require.NoError(t, err)
	return results
}

func (e *testEnv) project(t *testing.T, filter domain.ReportFilter) []domain.ReportRecord {
	t.Helper()
	page, err := e.reportSvc.Project(context.Background(), filter)
	require.NoError(t, err)
	return page.Items
}

func byCode(records []domain.ReportRecord) map[string]domain.ReportRecord {
	out := make(map[string]domain.ReportRecord, len(records))
	for _, r := range records {
		out[r.TransactionCode] = r
	}
	return out
}

func TestScenario_BillWithoutMerchantIsUnmatched(t *testing.T) {
	env := newTestEnv(t)

	sub, err := env.billSvc.Submit(context.Background(), billRequest("u1", "TX001", 100000, "Store A"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusUnmatched, sub.Report.Status)
	assert.Equal(t, matcher.MsgNoMerchant, sub.Report.ErrorMessage)
	assert.Equal(t, sub.Bill.ID, sub.Report.UserBillID)

	entry, err := env.reportSvc.Lookup(context.Background(), "TX001")
	require.NoError(t, err)
	assert.Equal(t, sub.Report.ID, entry.ReportRecordID)
	assert.Equal(t, sub.Bill.ID, entry.UserBillID)
}

func TestScenario_MerchantImportedAfterBillMatches(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.billSvc.Submit(context.Background(), billRequest("u1", "TX001", 100000, "Store A"))
	require.NoError(t, err)

	env.importRows(t, "TX001,100000,Store A")

	records := env.project(t, domain.ReportFilter{})
	require.Len(t, records, 1)
	assert.Equal(t, "TX001", records[0].TransactionCode)
	assert.Equal(t, domain.StatusMatched, records[0].Status)
	assert.True(t, records[0].HasMerchant())
}

func TestScenario_MerchantWithoutBillIsVirtual(t *testing.T) {
	env := newTestEnv(t)
	env.importRows(t, "TX002,50000,Store B")

	records := env.project(t, domain.ReportFilter{})
	require.Len(t, records, 1)
	assert.True(t, records[0].IsVirtual())
	assert.Equal(t, domain.StatusUnmatched, records[0].Status)
	assert.Contains(t, records[0].ErrorMessage, "no bill found")
}

func TestScenario_AmountMismatchIsError(t *testing.T) {
	env := newTestEnv(t)
	env.importRows(t, "TX003,199000,Store C")

	sub, err := env.billSvc.Submit(context.Background(), billRequest("u1", "TX003", 200000, "Store C"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, sub.Report.Status)
	assert.Contains(t, sub.Report.ErrorMessage, "amount mismatch")
	assert.Contains(t, sub.Report.ErrorMessage, "200000")
	assert.Contains(t, sub.Report.ErrorMessage, "199000")

	records := env.project(t, domain.ReportFilter{})
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusError, records[0].Status)
	assert.Equal(t, sub.Report.ErrorMessage, records[0].ErrorMessage)
}

func TestScenario_AmountMismatchBillFirstIsError(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.billSvc.Submit(context.Background(), billRequest("u1", "TX003", 200000, "Store C"))
	require.NoError(t, err)
	env.importRows(t, "TX003,199000,Store C")

	records := env.project(t, domain.ReportFilter{})
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusError, records[0].Status)
	assert.Contains(t, records[0].ErrorMessage, "amount mismatch")
	assert.Contains(t, records[0].ErrorMessage, "200000")
	assert.Contains(t, records[0].ErrorMessage, "199000")
}

func TestScenario_DuplicateBillRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := billRequest("u1", "TX004", 100000, "Store D")
	first.FileName = "receipt.png"
	first.InvoiceNumber = "INV-1"
	sub, err := env.billSvc.Submit(ctx, first)
	require.NoError(t, err)

	_, err = env.billSvc.Submit(ctx, billRequest("u2", " TX004 ", 100000, "Store D"))
	var dup *domain.DuplicateBillError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "TX004", dup.TransactionCode)
	assert.Equal(t, sub.Bill.ID, dup.ExistingBillID)
	assert.Equal(t, "receipt.png", dup.FileName)
	assert.Equal(t, "INV-1", dup.InvoiceNumber)

	bills, err := env.bills.List(ctx)
	require.NoError(t, err)
	assert.Len(t, bills, 1)

	entry, err := env.reportSvc.Lookup(ctx, "TX004")
	require.NoError(t, err)
	assert.Equal(t, sub.Bill.ID, entry.UserBillID)
}

func TestScenario_ReimportIsStable(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.billSvc.Submit(context.Background(), billRequest("u1", "TX005", 100000, "Store E"))
	require.NoError(t, err)

	env.importRows(t, "TX005,100000,Store E")
	before := env.project(t, domain.ReportFilter{})

	env.importRows(t, "TX005,100000,Store E")
	after := env.project(t, domain.ReportFilter{})

	require.Len(t, before, 1)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, before[0].Status, after[0].Status)
	assert.Equal(t, before[0].MerchantTransactionID, after[0].MerchantTransactionID)
}

func TestProject_OneRowPerCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, code := range []string{"A1", "A2", "A3"} {
		_, err := env.billSvc.Submit(ctx, billRequest("u1", code, 1000, ""))
		require.NoError(t, err)
	}
	env.importRows(t, "A1,1000,", "A2,999,", "A2,1000,", "B1,500,")

	records := env.project(t, domain.ReportFilter{})
	got := byCode(records)
	assert.Len(t, records, 4)
	assert.Len(t, got, 4)
	assert.Equal(t, domain.StatusMatched, got["A1"].Status)
	assert.Equal(t, domain.StatusUnmatched, got["A3"].Status)
	assert.Equal(t, domain.StatusUnmatched, got["B1"].Status)
}

func TestProject_InvalidFilter(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.reportSvc.Project(context.Background(), domain.ReportFilter{Status: "DONE"})
	assert.True(t, domain.IsValidation(err))
}

func TestProject_CorruptDocumentFailsRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.billSvc.Submit(ctx, billRequest("u1", "TX030", 100, ""))
	require.NoError(t, err)
	require.NoError(t, env.store.Put(ctx, store.CollectionReports, "broken", []byte(`{"amount":{}}`)))

	_, err = env.reportSvc.Project(ctx, domain.ReportFilter{})
	require.Error(t, err)
	assert.False(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "reports/broken")
}
