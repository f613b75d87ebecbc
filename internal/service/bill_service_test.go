package service

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-dashboard/internal/config"
	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/ocr"
	"recon-dashboard/internal/repository"
)

func TestBillService_Submit_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		req   SubmitBillRequest
		field string
	}{
		{"missing owner", billRequest("", "TX1", 100, ""), "OwnerUserID"},
		{"blank code", billRequest("u1", "   ", 100, ""), "transactionCode"},
		{"zero amount", billRequest("u1", "TX1", 0, ""), "amount"},
		{"negative amount", billRequest("u1", "TX1", -5, ""), "amount"},
		{"unknown method", func() SubmitBillRequest {
			r := billRequest("u1", "TX1", 100, "")
			r.PaymentMethod = "CHEQUE"
			return r
		}(), "paymentMethod"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.billSvc.Submit(context.Background(), tt.req)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestBillService_Submit_DefaultsPaymentMethod(t *testing.T) {
	env := newTestEnv(t)
	req := billRequest("u1", "TX1", 100, "")
	req.PaymentMethod = ""

	sub, err := env.billSvc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.MethodOther, sub.Bill.PaymentMethod)
}

func TestBillService_Submit_NormalizesCode(t *testing.T) {
	env := newTestEnv(t)

	sub, err := env.billSvc.Submit(context.Background(), billRequest("u1", " INV.01/2 ", 100, ""))
	require.NoError(t, err)
	assert.Equal(t, "INV_01_2", sub.Bill.TransactionCode)
	assert.Equal(t, "INV_01_2", sub.Report.TransactionCode)
}

// failingBills fails every Create
type failingBills struct {
	repository.BillRepository
}

func (failingBills) Create(context.Context, *domain.BillRecord) error {
	return errors.New("store unavailable")
}

func TestBillService_Submit_ReleasesReservationWhenBillWriteFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewBillService(failingBills{env.bills}, env.merchants, env.reports, env.index, env.extractor,
		config.NewStaticMatchingConfig(config.DefaultMatchingConfig()), nil, 0)

	_, err := svc.Submit(ctx, billRequest("u1", "TX9", 100, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")

	entry, err := env.index.Lookup(ctx, "TX9")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Empty(t, entry.UserBillID)

	_, err = env.billSvc.Submit(ctx, billRequest("u1", "TX9", 100, ""))
	assert.NoError(t, err)
}

// failingReports fails every Save
type failingReports struct {
	repository.ReportRepository
}

func (failingReports) Save(context.Context, *domain.ReportRecord) error {
	return errors.New("report store unavailable")
}

func TestBillService_Submit_RollsBackWhenReportWriteFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	svc := NewBillService(env.bills, env.merchants, failingReports{env.reports}, env.index, env.extractor,
		config.NewStaticMatchingConfig(config.DefaultMatchingConfig()), nil, 0)

	_, err := svc.Submit(ctx, billRequest("u1", "TX9", 100, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report store unavailable")
	var dup *domain.DuplicateBillError
	assert.False(t, errors.As(err, &dup))

	bills, err := env.bills.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, bills)

	entry, err := env.index.Lookup(ctx, "TX9")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Empty(t, entry.UserBillID)

	sub, err := env.billSvc.Submit(ctx, billRequest("u1", "TX9", 100, ""))
	require.NoError(t, err)
	assert.Equal(t, "TX9", sub.Report.TransactionCode)
}

func TestBillService_SubmitFromImage(t *testing.T) {
	env := newTestEnv(t)
	image := []byte("png-bytes")

	env.extractor.EXPECT().
		Extract(gomock.Any(), image, "image/png").
		Return(&domain.ExtractedBill{
			TransactionCode: "OCR001",
			Amount:          decimal.NewFromInt(75000),
			PaymentMethod:   domain.MethodEWallet,
			PointOfSaleName: "Store F",
			InvoiceNumber:   "INV-9",
		}, nil)

	sub, err := env.billSvc.SubmitFromImage(context.Background(), ImageBillRequest{
		OwnerUserID: "u1",
		FileName:    "bill.png",
		ContentType: "image/png",
		Image:       image,
	})
	require.NoError(t, err)
	assert.Equal(t, "OCR001", sub.Bill.TransactionCode)
	assert.Equal(t, "bill.png", sub.Bill.FileName)
	assert.Equal(t, "INV-9", sub.Bill.InvoiceNumber)
	assert.Equal(t, domain.MethodEWallet, sub.Bill.PaymentMethod)
	assert.Equal(t, domain.StatusUnmatched, sub.Report.Status)
}

func TestBillService_SubmitFromImage_TimeoutFailsExtraction(t *testing.T) {
	env := newTestEnv(t)

	env.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, image []byte, contentType string) (*domain.ExtractedBill, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, err := env.billSvc.SubmitFromImage(context.Background(), ImageBillRequest{
		OwnerUserID: "u1",
		Image:       []byte("slow"),
	})
	assert.ErrorIs(t, err, ocr.ErrExtractionFailed)

	bills, err := env.bills.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bills)
}

func TestBillService_SubmitFromImage_EmptyImage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.billSvc.SubmitFromImage(context.Background(), ImageBillRequest{OwnerUserID: "u1"})
	assert.True(t, domain.IsValidation(err))
}

func TestBillService_UpdateUnlockedBill(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub, err := env.billSvc.Submit(ctx, billRequest("u1", "TX10", 100000, "Store A"))
	require.NoError(t, err)

	amount := decimal.NewFromInt(120000)
	pos := "Store B"
	updated, err := env.billSvc.Update(ctx, "u1", sub.Bill.ID, UpdateBillRequest{Amount: &amount, PointOfSaleName: &pos})
	require.NoError(t, err)

	assert.True(t, updated.Bill.Amount.Equal(amount))
	assert.Equal(t, sub.Report.ID, updated.Report.ID)
	require.NotNil(t, updated.Report.Amount)
	assert.True(t, updated.Report.Amount.Equal(amount))
	assert.Equal(t, "Store B", updated.Report.PointOfSaleName)

	stored, err := env.bills.GetByID(ctx, sub.Bill.ID)
	require.NoError(t, err)
	assert.Equal(t, "Store B", stored.PointOfSaleName)
}

func TestBillService_UpdateRejectsOtherOwners(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub, err := env.billSvc.Submit(ctx, billRequest("u1", "TX11", 100, ""))
	require.NoError(t, err)

	pos := "x"
	_, err = env.billSvc.Update(ctx, "u2", sub.Bill.ID, UpdateBillRequest{PointOfSaleName: &pos})
	assert.ErrorIs(t, err, domain.ErrNotOwner)
	assert.ErrorIs(t, env.billSvc.Delete(ctx, "u2", sub.Bill.ID), domain.ErrNotOwner)
}

func TestBillService_UpdateRequiresFields(t *testing.T) {
	env := newTestEnv(t)
	sub, err := env.billSvc.Submit(context.Background(), billRequest("u1", "TX12", 100, ""))
	require.NoError(t, err)

	_, err = env.billSvc.Update(context.Background(), "u1", sub.Bill.ID, UpdateBillRequest{})
	assert.True(t, domain.IsValidation(err))
}

func TestBillService_LockedOnceMerchantDataExists(t *testing.T) {
	tests := []struct {
		name     string
		merchant string
		status   domain.MatchStatus
	}{
		{"matched", "TX13,100000,Store A", domain.StatusMatched},
		{"error", "TX13,90000,Store A", domain.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			sub, err := env.billSvc.Submit(ctx, billRequest("u1", "TX13", 100000, "Store A"))
			require.NoError(t, err)

			lock, err := env.billSvc.LockStatus(ctx, sub.Bill.ID)
			require.NoError(t, err)
			assert.False(t, lock.Locked)
			assert.Equal(t, domain.StatusUnmatched, lock.Status)

			env.importRows(t, tt.merchant)

			lock, err = env.billSvc.LockStatus(ctx, sub.Bill.ID)
			require.NoError(t, err)
			assert.True(t, lock.Locked)
			assert.Equal(t, tt.status, lock.Status)

			pos := "Store Z"
			_, err = env.billSvc.Update(ctx, "u1", sub.Bill.ID, UpdateBillRequest{PointOfSaleName: &pos})
			assert.ErrorIs(t, err, domain.ErrBillLocked)
			assert.ErrorIs(t, env.billSvc.Delete(ctx, "u1", sub.Bill.ID), domain.ErrBillLocked)
		})
	}
}

func TestBillService_DeleteFreesCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub, err := env.billSvc.Submit(ctx, billRequest("u1", "TX14", 100, ""))
	require.NoError(t, err)

	require.NoError(t, env.billSvc.Delete(ctx, "u1", sub.Bill.ID))

	_, err = env.bills.GetByID(ctx, sub.Bill.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.reports.GetByID(ctx, sub.Report.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, env.project(t, domain.ReportFilter{}))

	again, err := env.billSvc.Submit(ctx, billRequest("u1", "TX14", 100, ""))
	require.NoError(t, err)
	assert.Equal(t, sub.Report.ID, again.Report.ID)
}

func TestBillService_LockStatus_MissingBill(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.billSvc.LockStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
