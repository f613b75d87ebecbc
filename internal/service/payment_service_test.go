package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-dashboard/internal/domain"
)

// paymentFixture returns a matched persisted record and a virtual one
func paymentFixture(t *testing.T, env *testEnv) (*BillSubmission, string) {
	t.Helper()
	sub, err := env.billSvc.Submit(context.Background(), billRequest("u1", "P1", 100000, "Store A"))
	require.NoError(t, err)
	env.importRows(t, "P2,50000,Store B")

	var virtualID string
	for _, r := range env.project(t, domain.ReportFilter{}) {
		if r.TransactionCode == "P2" {
			virtualID = r.ID
		}
	}
	require.NotEmpty(t, virtualID)
	return sub, virtualID
}

func TestPaymentService_CreatePayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub, virtualID := paymentFixture(t, env)

	payment, err := env.paymentSvc.CreatePayment(ctx, domain.PaymentKindAgent, CreatePaymentRequest{
		ReportRecordIDs: []string{sub.Report.ID, virtualID, sub.Report.ID},
		CreatedBy:       "agent-1",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentKindAgent, payment.Kind)
	assert.Equal(t, domain.PaymentUnpaid, payment.Status)
	assert.Equal(t, "150000", payment.TotalAmount.String())
	require.Len(t, payment.ReportRecordIDs, 2)
	assert.Equal(t, sub.Report.ID, payment.ReportRecordIDs[0])
	assert.False(t, domain.IsVirtualID(payment.ReportRecordIDs[1]))

	for _, id := range payment.ReportRecordIDs {
		r, err := env.reports.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, payment.ID, r.AgentPaymentID)
		assert.Equal(t, domain.PaymentUnpaid, r.AgentPaymentStatus)
	}

	stored, err := env.payments.GetByID(ctx, domain.PaymentKindAgent, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ReportRecordIDs, stored.ReportRecordIDs)

	_, err = env.paymentSvc.CreatePayment(ctx, domain.PaymentKindAgent, CreatePaymentRequest{ReportRecordIDs: []string{sub.Report.ID}})
	assert.True(t, domain.IsValidation(err))

	admin, err := env.paymentSvc.CreatePayment(ctx, domain.PaymentKindAdmin, CreatePaymentRequest{ReportRecordIDs: []string{sub.Report.ID}})
	require.NoError(t, err, "legs are independent")
	assert.Equal(t, domain.PaymentKindAdmin, admin.Kind)

	listed, err := env.paymentSvc.List(ctx, domain.PaymentKindAgent)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestPaymentService_CreatePaymentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.paymentSvc.CreatePayment(ctx, "bank", CreatePaymentRequest{ReportRecordIDs: []string{"r1"}})
	assert.True(t, domain.IsValidation(err))

	_, err = env.paymentSvc.CreatePayment(ctx, domain.PaymentKindAdmin, CreatePaymentRequest{})
	assert.True(t, domain.IsValidation(err))

	_, err = env.paymentSvc.CreatePayment(ctx, domain.PaymentKindAdmin, CreatePaymentRequest{ReportRecordIDs: []string{"missing"}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaymentService_MarkPaidAndRevert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub, virtualID := paymentFixture(t, env)

	payment, err := env.paymentSvc.CreatePayment(ctx, domain.PaymentKindAdmin, CreatePaymentRequest{
		ReportRecordIDs: []string{sub.Report.ID, virtualID},
	})
	require.NoError(t, err)

	paid, err := env.paymentSvc.MarkPaid(ctx, domain.PaymentKindAdmin, sub.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	var merchantID string
	for _, id := range payment.ReportRecordIDs {
		r, err := env.reports.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentPaid, r.AdminPaymentStatus, "sibling %s", id)
		assert.NotNil(t, r.AdminPaidAt)
		assert.Empty(t, r.AgentPaymentStatus)
		if r.ID != sub.Report.ID {
			merchantID = r.MerchantTransactionID
		}
	}

	bill, err := env.bills.GetByID(ctx, sub.Bill.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, bill.AdminPaymentStatus)

	require.NotEmpty(t, merchantID)
	merchant, err := env.merchants.GetByID(ctx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, merchant.AdminPaymentStatus)

	reverted, err := env.paymentSvc.Revert(ctx, domain.PaymentKindAdmin, sub.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUnpaid, reverted.Status)
	assert.Nil(t, reverted.PaidAt)

	for _, id := range payment.ReportRecordIDs {
		r, err := env.reports.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentUnpaid, r.AdminPaymentStatus)
		assert.Nil(t, r.AdminPaidAt)
	}
	bill, err = env.bills.GetByID(ctx, sub.Bill.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentUnpaid, bill.AdminPaymentStatus)
}

func TestPaymentService_MarkPaidSkipsRemovedSourceRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub, _ := paymentFixture(t, env)

	_, err := env.paymentSvc.CreatePayment(ctx, domain.PaymentKindAdmin, CreatePaymentRequest{ReportRecordIDs: []string{sub.Report.ID}})
	require.NoError(t, err)
	require.NoError(t, env.bills.Delete(ctx, sub.Bill.ID))

	_, err = env.paymentSvc.MarkPaid(ctx, domain.PaymentKindAdmin, sub.Report.ID)
	require.NoError(t, err)

	_, err = env.bills.GetByID(ctx, sub.Bill.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaymentService_MarkPaidWithoutPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub, _ := paymentFixture(t, env)

	_, err := env.paymentSvc.MarkPaid(ctx, domain.PaymentKindAgent, sub.Report.ID)
	assert.True(t, domain.IsValidation(err))

	_, err = env.paymentSvc.MarkPaid(ctx, domain.PaymentKindAgent, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
