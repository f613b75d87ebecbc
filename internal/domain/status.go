package domain

// MatchStatus represents the reconciliation outcome of a report record
type MatchStatus string

const (
	StatusMatched   MatchStatus = "MATCHED"
	StatusError     MatchStatus = "ERROR"
	StatusUnmatched MatchStatus = "UNMATCHED"
	StatusPending   MatchStatus = "PENDING"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case StatusMatched, StatusError, StatusUnmatched, StatusPending:
		return true
	}
	return false
}

// LocksBill reports whether a bill whose merged record carries this status
// can no longer be edited by its submitter.
func (s MatchStatus) LocksBill() bool {
	return s == StatusMatched || s == StatusError
}

// PaymentMethod is the declared payment channel of a bill
type PaymentMethod string

const (
	MethodQRCode       PaymentMethod = "QR_CODE"
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodEWallet      PaymentMethod = "E_WALLET"
	MethodOther        PaymentMethod = "OTHER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodQRCode, MethodCard, MethodBankTransfer, MethodEWallet, MethodOther:
		return true
	}
	return false
}

// PaymentStatus is the payout state propagated onto report records
type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "PAID"
	PaymentUnpaid PaymentStatus = "UNPAID"
)

// PaymentKind selects which payout leg a payment belongs to
type PaymentKind string

const (
	PaymentKindAdmin PaymentKind = "admin"
	PaymentKindAgent PaymentKind = "agent"
)

func (k PaymentKind) Valid() bool {
	return k == PaymentKindAdmin || k == PaymentKindAgent
}
