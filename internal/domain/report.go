package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// VirtualIDPrefix marks report records synthesized at query time
const VirtualIDPrefix = "virtual_"

// ReportRecord is the reconciliation outcome for one transaction code
type ReportRecord struct {
	ID                   string      `json:"id"`
	TransactionCode      string      `json:"transactionCode"`
	Status               MatchStatus `json:"status"`
	ReconciliationStatus MatchStatus `json:"reconciliationStatus"`
	ErrorMessage         string      `json:"errorMessage,omitempty"`

	// bill-derived
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	PaymentMethod     PaymentMethod    `json:"paymentMethod,omitempty"`
	PointOfSaleName   string           `json:"pointOfSaleName,omitempty"`
	OwnerUserID       string           `json:"ownerUserId,omitempty"`
	AgentID           string           `json:"agentId,omitempty"`
	AgentCode         string           `json:"agentCode,omitempty"`
	TransactionDate   *time.Time       `json:"transactionDate,omitempty"`
	UserBillID        string           `json:"userBillId,omitempty"`
	UserBillCreatedAt *time.Time       `json:"userBillCreatedAt,omitempty"`

	// merchant-derived
	MerchantTransactionID        string            `json:"merchantTransactionId,omitempty"`
	MerchantAmount               *decimal.Decimal  `json:"merchantAmount,omitempty"`
	MerchantAmountBeforeDiscount *decimal.Decimal  `json:"merchantAmountBeforeDiscount,omitempty"`
	MerchantPointOfSaleName      string            `json:"merchantPointOfSaleName,omitempty"`
	MerchantTransactionDate      *time.Time        `json:"merchantTransactionDate,omitempty"`
	MerchantsFileData            map[string]string `json:"merchantsFileData,omitempty"`

	// payment propagation
	AdminPaymentID     string        `json:"adminPaymentId,omitempty"`
	AdminPaymentStatus PaymentStatus `json:"adminPaymentStatus,omitempty"`
	AdminPaidAt        *time.Time    `json:"adminPaidAt,omitempty"`
	AgentPaymentID     string        `json:"agentPaymentId,omitempty"`
	AgentPaymentStatus PaymentStatus `json:"agentPaymentStatus,omitempty"`
	AgentPaidAt        *time.Time    `json:"agentPaidAt,omitempty"`

	// audit
	IsManuallyEdited bool       `json:"isManuallyEdited,omitempty"`
	EditedFields     []string   `json:"editedFields,omitempty"`
	ReconciledAt     *time.Time `json:"reconciledAt,omitempty"`
	ReconciledBy     string     `json:"reconciledBy,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// SetStatus keeps status and its legacy mirror in sync
func (r *ReportRecord) SetStatus(status MatchStatus, message string) {
	r.Status = status
	r.ReconciliationStatus = status
	r.ErrorMessage = message
}

// IsVirtual reports whether the record was synthesized and never persisted
func (r ReportRecord) IsVirtual() bool {
	return IsVirtualID(r.ID)
}

// HasMerchant is the authoritative "has a merchant match" signal
func (r ReportRecord) HasMerchant() bool {
	return r.MerchantTransactionID != ""
}

func IsVirtualID(id string) bool {
	return strings.HasPrefix(id, VirtualIDPrefix)
}

// VirtualID builds the synthesized id for a merchant row
func VirtualID(merchantID string) string {
	return VirtualIDPrefix + merchantID
}

// MerchantIDFromVirtual extracts the merchant id from a virtual record id
func MerchantIDFromVirtual(id string) (string, bool) {
	if !IsVirtualID(id) {
		return "", false
	}
	mid := strings.TrimPrefix(id, VirtualIDPrefix)
	return mid, mid != ""
}

// ReportFilter selects report records from a projection
type ReportFilter struct {
	OwnerUserID     string
	AgentID         string
	AgentCode       string
	Status          MatchStatus
	PointOfSaleName string
	From            *time.Time
	To              *time.Time
	Limit           int
	Cursor          string
}

// ReportPage is one page of projected report records
type ReportPage struct {
	Items      []ReportRecord `json:"items"`
	Total      int            `json:"total"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ReportSummary counts projected records per status
type ReportSummary struct {
	Total     int             `json:"total"`
	Matched   int             `json:"matched"`
	Error     int             `json:"error"`
	Unmatched int             `json:"unmatched"`
	Pending   int             `json:"pending"`
	Virtual   int             `json:"virtual"`
	Amount    decimal.Decimal `json:"amount"`
}

// ReportEdit carries an admin's manual override of a report record.
// Nil fields are left untouched.
type ReportEdit struct {
	Status          *MatchStatus
	ErrorMessage    *string
	Amount          *decimal.Decimal
	PointOfSaleName *string
	PaymentMethod   *PaymentMethod
	EditedBy        string
}
