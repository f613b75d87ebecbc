package domain

import "time"

// TransactionIndexEntry arbitrates the single report identity of a transaction code
type TransactionIndexEntry struct {
	TransactionCode       string    `json:"transactionCode"`
	ReportRecordID        string    `json:"reportRecordId"`
	UserBillID            string    `json:"userBillId,omitempty"`
	MerchantTransactionID string    `json:"merchantTransactionId,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}
