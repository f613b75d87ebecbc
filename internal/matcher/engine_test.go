package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recon-dashboard/internal/domain"
)

func bill(code string, amount int64, pos string) *domain.BillRecord {
	return &domain.BillRecord{
		ID:              "bill-" + code,
		OwnerUserID:     "user-1",
		TransactionCode: code,
		Amount:          decimal.NewFromInt(amount),
		PaymentMethod:   domain.MethodQRCode,
		PointOfSaleName: pos,
	}
}

func merchant(code string, amount decimal.Decimal, pos string) *domain.MerchantTransaction {
	return &domain.MerchantTransaction{
		ID:              "m-" + code,
		TransactionCode: code,
		Amount:          amount,
		PointOfSaleName: pos,
	}
}

func TestEngine_Match(t *testing.T) {
	engine := NewEngine(DefaultTolerance)

	tests := []struct {
		name     string
		bill     *domain.BillRecord
		merchant *domain.MerchantTransaction
		status   domain.MatchStatus
		message  string
	}{
		{
			name:    "no merchant yet",
			bill:    bill("TX001", 100000, "Store A"),
			status:  domain.StatusUnmatched,
			message: MsgNoMerchant,
		},
		{
			name:     "no bill",
			merchant: merchant("TX002", decimal.NewFromInt(50000), "Store B"),
			status:   domain.StatusUnmatched,
			message:  MsgNoBill,
		},
		{
			name:     "exact match",
			bill:     bill("TX001", 100000, "Store A"),
			merchant: merchant("TX001", decimal.NewFromInt(100000), "Store A"),
			status:   domain.StatusMatched,
		},
		{
			name:     "amount differs by 1000",
			bill:     bill("TX003", 200000, "Store C"),
			merchant: merchant("TX003", decimal.NewFromInt(199000), "Store C"),
			status:   domain.StatusError,
			message:  "amount mismatch: bill 200000 vs merchant 199000",
		},
		{
			name:     "both dimensions fail",
			bill:     bill("TX010", 10, "Store A"),
			merchant: merchant("TX010", decimal.NewFromInt(20), "Store B"),
			status:   domain.StatusError,
			message:  "amount mismatch: bill 10 vs merchant 20; point-of-sale mismatch: bill Store A vs merchant Store B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := engine.Match(tt.bill, tt.merchant)
			assert.Equal(t, tt.status, outcome.Status)
			assert.Equal(t, tt.message, outcome.ErrorMessage)
		})
	}
}

func TestEngine_MatchIsPure(t *testing.T) {
	engine := NewEngine(DefaultTolerance)
	b := bill("TX011", 500, "")
	m := merchant("TX011", decimal.NewFromInt(700), "Kiosk")

	first := engine.Match(b, m)
	second := engine.Match(b, m)
	assert.Equal(t, first, second)
}

func TestAmountRule_ToleranceBoundary(t *testing.T) {
	engine := NewEngine(DefaultTolerance)
	b := bill("TX012", 1000, "Store")

	tests := []struct {
		name    string
		amount  string
		matched bool
	}{
		{"equal", "1000", true},
		{"just under one unit above", "1000.99", true},
		{"just under one unit below", "999.01", true},
		{"exactly one unit above", "1001", false},
		{"exactly one unit below", "999", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := merchant("TX012", decimal.RequireFromString(tt.amount), "Store")
			outcome := engine.Match(b, m)
			if tt.matched {
				assert.Equal(t, domain.StatusMatched, outcome.Status)
			} else {
				assert.Equal(t, domain.StatusError, outcome.Status)
				assert.Contains(t, outcome.ErrorMessage, "amount mismatch")
			}
		})
	}
}

func TestAmountRule_PrefersAmountBeforeDiscount(t *testing.T) {
	engine := NewEngine(DefaultTolerance)
	b := bill("TX013", 100000, "Store")
	m := merchant("TX013", decimal.NewFromInt(90000), "Store")
	before := decimal.NewFromInt(100000)
	m.AmountBeforeDiscount = &before

	assert.Equal(t, domain.StatusMatched, engine.Match(b, m).Status)
}

func TestPointOfSaleRule(t *testing.T) {
	engine := NewEngine(DefaultTolerance)

	tests := []struct {
		name        string
		billPOS     string
		merchantPOS string
		matched     bool
	}{
		{"both empty", "", "", true},
		{"both equal", "Store A", "Store A", true},
		{"case differs", "Store A", "store a", false},
		{"bill empty", "", "Store A", false},
		{"merchant empty", "Store A", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := engine.Match(bill("TX", 10, tt.billPOS), merchant("TX", decimal.NewFromInt(10), tt.merchantPOS))
			assert.Equal(t, tt.matched, outcome.Status == domain.StatusMatched)
		})
	}
}

func TestEngine_BestBill(t *testing.T) {
	engine := NewEngine(DefaultTolerance)
	m := *merchant("TX014", decimal.NewFromInt(300), "Store")

	candidates := []domain.BillRecord{
		*bill("TX014", 100, "Store"),
		*bill("TX014", 300, "Store"),
		*bill("TX014", 300, "Store"),
	}
	candidates[1].ID = "second"
	candidates[2].ID = "third"

	best, ok := engine.BestBill(candidates, m)
	require.True(t, ok)
	assert.Equal(t, "second", best.ID)

	_, ok = engine.BestBill(candidates[:1], m)
	assert.False(t, ok)
}

func TestNewEngine_NonPositiveToleranceFallsBack(t *testing.T) {
	engine := NewEngine(decimal.Zero)
	outcome := engine.Match(bill("TX", 10, ""), merchant("TX", decimal.RequireFromString("10.5"), ""))
	assert.Equal(t, domain.StatusMatched, outcome.Status)
}

func TestEngine_BuildRecord(t *testing.T) {
	engine := NewEngine(DefaultTolerance)
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	txDate := time.Date(2024, 2, 28, 18, 30, 0, 0, time.UTC)

	b := bill("TX.015", 100000, "Store A")
	b.AgentID = "agent-1"
	b.CreatedAt = created
	m := merchant("TX.015", decimal.NewFromInt(100000), "Store A")
	m.TransactionDate = &txDate
	m.RawData = map[string]string{"Branch": "HN"}

	record := engine.BuildRecord("r-1", b, m, created)

	assert.Equal(t, "r-1", record.ID)
	assert.Equal(t, "TX_015", record.TransactionCode)
	assert.Equal(t, domain.StatusMatched, record.Status)
	assert.Equal(t, domain.StatusMatched, record.ReconciliationStatus)
	assert.Empty(t, record.ErrorMessage)
	assert.Equal(t, b.ID, record.UserBillID)
	assert.Equal(t, "agent-1", record.AgentID)
	assert.Equal(t, m.ID, record.MerchantTransactionID)
	assert.True(t, record.Amount.Equal(decimal.NewFromInt(100000)))
	assert.True(t, record.MerchantAmount.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, &txDate, record.MerchantTransactionDate)
	assert.Equal(t, &created, record.UserBillCreatedAt)
	assert.Equal(t, "HN", record.MerchantsFileData["Branch"])

	// the copy must not alias the merchant's raw data
	m.RawData["Branch"] = "SG"
	assert.Equal(t, "HN", record.MerchantsFileData["Branch"])
}

func TestApply_KeepsExistingFields(t *testing.T) {
	amount := decimal.NewFromInt(1)
	record := domain.ReportRecord{
		UserBillID:            "kept-bill",
		Amount:                &amount,
		MerchantTransactionID: "kept-merchant",
	}

	ApplyBill(&record, *bill("TX", 99, "Store"))
	ApplyMerchant(&record, *merchant("TX", decimal.NewFromInt(99), "Store"))

	assert.Equal(t, "kept-bill", record.UserBillID)
	assert.True(t, record.Amount.Equal(amount))
	assert.Equal(t, "kept-merchant", record.MerchantTransactionID)
	assert.Equal(t, "Store", record.PointOfSaleName)
	assert.Equal(t, "Store", record.MerchantPointOfSaleName)
}
