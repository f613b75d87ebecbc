package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillRecord is a customer-submitted claim of payment, extracted from a bill image
type BillRecord struct {
	ID                 string          `json:"id"`
	OwnerUserID        string          `json:"ownerUserId"`
	AgentID            string          `json:"agentId,omitempty"`
	AgentCode          string          `json:"agentCode,omitempty"`
	TransactionCode    string          `json:"transactionCode"`
	Amount             decimal.Decimal `json:"amount"`
	PaymentMethod      PaymentMethod   `json:"paymentMethod"`
	PointOfSaleName    string          `json:"pointOfSaleName,omitempty"`
	InvoiceNumber      string          `json:"invoiceNumber,omitempty"`
	FileName           string          `json:"fileName,omitempty"`
	ImageReference     string          `json:"imageReference,omitempty"`
	TransactionDate    *time.Time      `json:"transactionDate,omitempty"`
	AdminPaymentStatus PaymentStatus   `json:"adminPaymentStatus,omitempty"`
	AgentPaymentStatus PaymentStatus   `json:"agentPaymentStatus,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// ExtractedBill holds the fields returned by the image-to-fields service
type ExtractedBill struct {
	TransactionCode string          `json:"transactionCode"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	PointOfSaleName string          `json:"pointOfSaleName,omitempty"`
	InvoiceNumber   string          `json:"invoiceNumber,omitempty"`
	TransactionDate *time.Time      `json:"transactionDate,omitempty"`
}

// BillLock describes whether a bill is still editable by its owner
type BillLock struct {
	BillID          string      `json:"billId"`
	TransactionCode string      `json:"transactionCode"`
	Status          MatchStatus `json:"status"`
	ReportRecordID  string      `json:"reportRecordId,omitempty"`
	Locked          bool        `json:"locked"`
}
