package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrBillLocked = errors.New("bill is locked: merchant data already exists for its transaction code")
	ErrNotOwner   = errors.New("bill does not belong to this user")
)

// DuplicateBillError is returned when a transaction code already has a bill bound to it
type DuplicateBillError struct {
	TransactionCode string `json:"transaction_code"`
	ExistingBillID  string `json:"existing_bill_id"`
	ReportRecordID  string `json:"report_record_id,omitempty"`
	FileName        string `json:"file_name,omitempty"`
	InvoiceNumber   string `json:"invoice_number,omitempty"`
}

func (e *DuplicateBillError) Error() string {
	msg := fmt.Sprintf("transaction code %s already has bill %s", e.TransactionCode, e.ExistingBillID)
	if e.FileName != "" {
		msg += fmt.Sprintf(" (file %s)", e.FileName)
	}
	if e.InvoiceNumber != "" {
		msg += fmt.Sprintf(" (invoice %s)", e.InvoiceNumber)
	}
	return msg
}

// ValidationError reports an input field that failed validation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsDuplicateBill(err error) bool {
	var dup *DuplicateBillError
	return errors.As(err, &dup)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
