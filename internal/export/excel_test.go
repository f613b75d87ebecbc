package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/projection"
)

func TestFileName(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "doi-soat-dai-ly-a-20240501.xlsx", FileName("Đối soát đại lý A", at))
	assert.Equal(t, "reconciliation-20240501.xlsx", FileName("", at))
}

func TestWriteReports(t *testing.T) {
	amount := decimal.NewFromInt(100000)
	paidAt := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	rows := []projection.Row{
		{
			Record: domain.ReportRecord{
				ID:                    "r1",
				TransactionCode:       "TX001",
				Status:                domain.StatusMatched,
				Amount:                &amount,
				MerchantTransactionID: "m1",
				MerchantAmount:        &amount,
				MerchantsFileData:     map[string]string{"b": "2", "a": "1"},
				AgentPaymentStatus:    domain.PaymentPaid,
				AgentPaidAt:           &paidAt,
				EditedFields:          []string{"status", "amount"},
			},
			Source: projection.SourceMerged,
		},
		{
			Record: domain.ReportRecord{
				ID:              "virtual_m2",
				TransactionCode: "TX002",
				Status:          domain.StatusUnmatched,
				ErrorMessage:    "no bill found",
			},
			Source: projection.SourceVirtual,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReports(&buf, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(ReportSheet)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, reportHeadings[0], got[0][0])
	assert.Equal(t, "r1", got[1][0])
	assert.Equal(t, "MATCHED", got[1][2])
	assert.Equal(t, "100000", got[1][4])
	assert.Equal(t, "a=1; b=2", got[1][17])
	assert.Equal(t, "PAID (2024-05-02)", got[1][19])
	assert.Equal(t, "status, amount", got[1][21])
	assert.Equal(t, "merged", got[1][22])
	assert.Equal(t, "no bill found", got[2][3])
	assert.Equal(t, "virtual", got[2][len(got[2])-1])

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Total", "2"}, summary[0])
	assert.Equal(t, []string{"Virtual", "1"}, summary[5])
}
