package matcher

import (
	"time"

	"recon-dashboard/internal/domain"
)

// BuildRecord assembles a report record for a pairing. Either side may be nil;
// the outcome is recomputed from the pair.
func (e *Engine) BuildRecord(id string, bill *domain.BillRecord, merchant *domain.MerchantTransaction, createdAt time.Time) domain.ReportRecord {
	record := domain.ReportRecord{
		ID:        id,
		CreatedAt: createdAt,
	}
	if bill != nil {
		record.TransactionCode = domain.NormalizeCode(bill.TransactionCode)
		ApplyBill(&record, *bill)
	}
	if merchant != nil {
		if record.TransactionCode == "" {
			record.TransactionCode = domain.NormalizeCode(merchant.TransactionCode)
		}
		ApplyMerchant(&record, *merchant)
	}
	outcome := e.Match(bill, merchant)
	record.SetStatus(outcome.Status, outcome.ErrorMessage)
	return record
}

// ApplyBill copies bill-origin fields onto unset fields of the record
func ApplyBill(record *domain.ReportRecord, bill domain.BillRecord) {
	if record.UserBillID == "" {
		record.UserBillID = bill.ID
	}
	if record.Amount == nil {
		amount := bill.Amount
		record.Amount = &amount
	}
	if record.PaymentMethod == "" {
		record.PaymentMethod = bill.PaymentMethod
	}
	if record.PointOfSaleName == "" {
		record.PointOfSaleName = bill.PointOfSaleName
	}
	if record.OwnerUserID == "" {
		record.OwnerUserID = bill.OwnerUserID
	}
	if record.AgentID == "" {
		record.AgentID = bill.AgentID
	}
	if record.AgentCode == "" {
		record.AgentCode = bill.AgentCode
	}
	if record.TransactionDate == nil && bill.TransactionDate != nil {
		date := *bill.TransactionDate
		record.TransactionDate = &date
	}
	if record.UserBillCreatedAt == nil && !bill.CreatedAt.IsZero() {
		created := bill.CreatedAt
		record.UserBillCreatedAt = &created
	}
	if record.AdminPaymentStatus == "" {
		record.AdminPaymentStatus = bill.AdminPaymentStatus
	}
	if record.AgentPaymentStatus == "" {
		record.AgentPaymentStatus = bill.AgentPaymentStatus
	}
}

// ApplyMerchant copies merchant-origin fields onto unset fields of the record
func ApplyMerchant(record *domain.ReportRecord, merchant domain.MerchantTransaction) {
	if record.MerchantTransactionID == "" {
		record.MerchantTransactionID = merchant.ID
	}
	if record.MerchantAmount == nil {
		amount := merchant.Amount
		record.MerchantAmount = &amount
	}
	if record.MerchantAmountBeforeDiscount == nil && merchant.AmountBeforeDiscount != nil {
		before := *merchant.AmountBeforeDiscount
		record.MerchantAmountBeforeDiscount = &before
	}
	if record.MerchantPointOfSaleName == "" {
		record.MerchantPointOfSaleName = merchant.PointOfSaleName
	}
	if record.MerchantTransactionDate == nil && merchant.TransactionDate != nil {
		date := *merchant.TransactionDate
		record.MerchantTransactionDate = &date
	}
	if len(record.MerchantsFileData) == 0 && len(merchant.RawData) > 0 {
		raw := make(map[string]string, len(merchant.RawData))
		for k, v := range merchant.RawData {
			raw[k] = v
		}
		record.MerchantsFileData = raw
	}
}
