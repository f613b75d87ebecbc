package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment groups report records paid out together on one leg
type Payment struct {
	ID              string          `json:"id"`
	Kind            PaymentKind     `json:"kind"`
	ReportRecordIDs []string        `json:"reportRecordIds"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Status          PaymentStatus   `json:"status"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
	CreatedBy       string          `json:"createdBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}
