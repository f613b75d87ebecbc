package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MerchantTransaction is a settlement row imported from a merchant file
type MerchantTransaction struct {
	ID                   string            `json:"id"`
	TransactionCode      string            `json:"transactionCode"`
	Amount               decimal.Decimal   `json:"amount"`
	AmountBeforeDiscount *decimal.Decimal  `json:"amountBeforeDiscount,omitempty"`
	PointOfSaleName      string            `json:"pointOfSaleName,omitempty"`
	BranchName           string            `json:"branchName,omitempty"`
	InvoiceNumber        string            `json:"invoiceNumber,omitempty"`
	PhoneNumber          string            `json:"phoneNumber,omitempty"`
	PromotionCode        string            `json:"promotionCode,omitempty"`
	TransactionDate      *time.Time        `json:"transactionDate,omitempty"`
	RawData              map[string]string `json:"rawData,omitempty"`
	SourceFile           string            `json:"sourceFile,omitempty"`
	AdminPaymentStatus   PaymentStatus     `json:"adminPaymentStatus,omitempty"`
	AgentPaymentStatus   PaymentStatus     `json:"agentPaymentStatus,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
}

// SettledAmount is the amount compared against a bill: the pre-discount
// amount when the file carries one, the settled amount otherwise.
func (m MerchantTransaction) SettledAmount() decimal.Decimal {
	if m.AmountBeforeDiscount != nil && m.AmountBeforeDiscount.IsPositive() {
		return *m.AmountBeforeDiscount
	}
	return m.Amount
}

// ImportResult summarizes one settlement file import
type ImportResult struct {
	File     string   `json:"file"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	IDs      []string `json:"ids,omitempty"`
}

// DedupeResult summarizes an administrative duplicate cleanup pass
type DedupeResult struct {
	Codes          int `json:"codes"`
	Removed        int `json:"removed"`
	ReportsUpdated int `json:"reportsUpdated"`
}
