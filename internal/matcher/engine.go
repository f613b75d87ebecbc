package matcher

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"recon-dashboard/internal/domain"
)

const (
	MsgNoMerchant       = "no merchant file yet for this code"
	MsgNoBill           = "no bill found for this merchant code"
	MsgBillsDoNotMatch  = "has bill but does not match (amount or point-of-sale)"
	MsgNoCandidateBills = "no bill found, or transaction code not present among bills"

	clauseSeparator = "; "
)

// DefaultTolerance is the amount difference, exclusive, still treated as equal
var DefaultTolerance = decimal.NewFromInt(1)

// Rule checks one dimension of a bill/merchant pair. A failing rule returns
// the clause that goes into the record's error message.
type Rule interface {
	Check(bill domain.BillRecord, merchant domain.MerchantTransaction) (ok bool, clause string)
}

// AmountRule compares the bill amount with the merchant's settled amount
type AmountRule struct {
	Tolerance decimal.Decimal
}

func (r AmountRule) Check(bill domain.BillRecord, merchant domain.MerchantTransaction) (bool, string) {
	settled := merchant.SettledAmount()
	if settled.Sub(bill.Amount).Abs().LessThan(r.Tolerance) {
		return true, ""
	}
	return false, fmt.Sprintf("amount mismatch: bill %s vs merchant %s", bill.Amount.String(), settled.String())
}

// PointOfSaleRule requires both names absent, or both present and identical
type PointOfSaleRule struct{}

func (PointOfSaleRule) Check(bill domain.BillRecord, merchant domain.MerchantTransaction) (bool, string) {
	if bill.PointOfSaleName == merchant.PointOfSaleName {
		return true, ""
	}
	return false, fmt.Sprintf("point-of-sale mismatch: bill %s vs merchant %s",
		displayPOS(bill.PointOfSaleName), displayPOS(merchant.PointOfSaleName))
}

func displayPOS(name string) string {
	if name == "" {
		return "(none)"
	}
	return name
}

// Outcome is the status and diagnostic message of a pairing
type Outcome struct {
	Status       domain.MatchStatus
	ErrorMessage string
}

// Engine classifies bill/merchant pairs. It holds no state besides its rules,
// so Match is a pure function of its inputs.
type Engine struct {
	rules []Rule
}

func NewEngine(tolerance decimal.Decimal) *Engine {
	if !tolerance.IsPositive() {
		tolerance = DefaultTolerance
	}
	return &Engine{
		rules: []Rule{
			AmountRule{Tolerance: tolerance},
			PointOfSaleRule{},
		},
	}
}

// Match decides the outcome for a pair sharing a transaction code. Either
// side may be nil.
func (e *Engine) Match(bill *domain.BillRecord, merchant *domain.MerchantTransaction) Outcome {
	if merchant == nil {
		return Outcome{Status: domain.StatusUnmatched, ErrorMessage: MsgNoMerchant}
	}
	if bill == nil {
		return Outcome{Status: domain.StatusUnmatched, ErrorMessage: MsgNoBill}
	}

	var clauses []string
	for _, rule := range e.rules {
		if ok, clause := rule.Check(*bill, *merchant); !ok {
			clauses = append(clauses, clause)
		}
	}
	if len(clauses) == 0 {
		return Outcome{Status: domain.StatusMatched}
	}
	return Outcome{Status: domain.StatusError, ErrorMessage: strings.Join(clauses, clauseSeparator)}
}

// Agrees reports whether every rule holds for the pair
func (e *Engine) Agrees(bill domain.BillRecord, merchant domain.MerchantTransaction) bool {
	for _, rule := range e.rules {
		if ok, _ := rule.Check(bill, merchant); !ok {
			return false
		}
	}
	return true
}

// BestBill returns the first candidate that agrees with the merchant row
func (e *Engine) BestBill(candidates []domain.BillRecord, merchant domain.MerchantTransaction) (*domain.BillRecord, bool) {
	for i := range candidates {
		if e.Agrees(candidates[i], merchant) {
			return &candidates[i], true
		}
	}
	return nil, false
}
