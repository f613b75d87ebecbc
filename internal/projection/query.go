package projection

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"recon-dashboard/internal/domain"
)

// Project merges the snapshot and returns one filtered, sorted page. An empty
// page is a valid result.
func (p *Projector) Project(filter domain.ReportFilter, snap Snapshot) domain.ReportPage {
	rows := Filter(p.Merge(snap), filter)
	SortRows(rows)
	return p.Paginate(rows, filter.Limit, filter.Cursor)
}

// Filter keeps the rows matching every set criterion
func Filter(rows []Row, filter domain.ReportFilter) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if matches(row.Record, filter) {
			out = append(out, row)
		}
	}
	return out
}

func matches(r domain.ReportRecord, f domain.ReportFilter) bool {
	if f.OwnerUserID != "" && r.OwnerUserID != f.OwnerUserID {
		return false
	}
	if f.AgentID != "" && r.AgentID != f.AgentID {
		return false
	}
	if f.AgentCode != "" && r.AgentCode != f.AgentCode {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.PointOfSaleName != "" && pointOfSale(r) != f.PointOfSaleName {
		return false
	}
	if f.From != nil || f.To != nil {
		date := EffectiveDate(r)
		if date == nil {
			return false
		}
		if f.From != nil && date.Before(*f.From) {
			return false
		}
		if f.To != nil && date.After(*f.To) {
			return false
		}
	}
	return true
}

func pointOfSale(r domain.ReportRecord) string {
	if r.PointOfSaleName != "" {
		return r.PointOfSaleName
	}
	return r.MerchantPointOfSaleName
}

// EffectiveDate is the date a record is filtered by: transactionDate, then
// userBillCreatedAt, reconciledAt, createdAt and merchantTransactionDate.
func EffectiveDate(r domain.ReportRecord) *time.Time {
	switch {
	case r.TransactionDate != nil:
		return r.TransactionDate
	case r.UserBillCreatedAt != nil:
		return r.UserBillCreatedAt
	case r.ReconciledAt != nil:
		return r.ReconciledAt
	case !r.CreatedAt.IsZero():
		created := r.CreatedAt
		return &created
	default:
		return r.MerchantTransactionDate
	}
}

func sortKey(r domain.ReportRecord) time.Time {
	if !r.CreatedAt.IsZero() {
		return r.CreatedAt
	}
	if r.MerchantTransactionDate != nil {
		return *r.MerchantTransactionDate
	}
	return time.Time{}
}

// SortRows orders rows newest first, ties broken by id
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		ki, kj := sortKey(rows[i].Record), sortKey(rows[j].Record)
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return rows[i].Record.ID < rows[j].Record.ID
	})
}

// Paginate returns the rows after the cursor id. An unknown cursor yields an
// empty page.
func (p *Projector) Paginate(rows []Row, limit int, cursor string) domain.ReportPage {
	if limit <= 0 {
		limit = p.defaultLimit
	}
	if limit > p.maxLimit {
		limit = p.maxLimit
	}

	start := 0
	if cursor != "" {
		start = len(rows)
		for i, row := range rows {
			if row.Record.ID == cursor {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(rows) {
		end = len(rows)
	}

	page := domain.ReportPage{
		Items: make([]domain.ReportRecord, 0, end-start),
		Total: len(rows),
	}
	for _, row := range rows[start:end] {
		page.Items = append(page.Items, row.Record)
	}
	if end < len(rows) && end > start {
		page.NextCursor = rows[end-1].Record.ID
	}
	return page
}

// Records drops provenance
func Records(rows []Row) []domain.ReportRecord {
	out := make([]domain.ReportRecord, len(rows))
	for i, row := range rows {
		out[i] = row.Record
	}
	return out
}

// FindByCode returns the projected row for a transaction code
func FindByCode(rows []Row, code string) (Row, bool) {
	key := domain.NormalizeCode(code)
	for _, row := range rows {
		if row.Record.TransactionCode == key {
			return row, true
		}
	}
	return Row{}, false
}

// FindByID returns the projected row carrying the given record id
func FindByID(rows []Row, id string) (Row, bool) {
	for _, row := range rows {
		if row.Record.ID == id {
			return row, true
		}
	}
	return Row{}, false
}

// LockStatus derives whether a bill is still editable by its owner from the
// merged row of its code, never from a field stored on the bill.
func LockStatus(bill domain.BillRecord, rows []Row) domain.BillLock {
	lock := domain.BillLock{
		BillID:          bill.ID,
		TransactionCode: domain.NormalizeCode(bill.TransactionCode),
		Status:          domain.StatusPending,
	}
	row, ok := FindByCode(rows, bill.TransactionCode)
	if !ok {
		return lock
	}
	lock.Status = row.Record.Status
	lock.ReportRecordID = row.Record.ID
	lock.Locked = row.Record.Status.LocksBill()
	return lock
}

// Summarize counts rows per status and totals their amounts
func Summarize(rows []Row) domain.ReportSummary {
	summary := domain.ReportSummary{Amount: decimal.Zero}
	for _, row := range rows {
		r := row.Record
		summary.Total++
		switch r.Status {
		case domain.StatusMatched:
			summary.Matched++
		case domain.StatusError:
			summary.Error++
		case domain.StatusUnmatched:
			summary.Unmatched++
		case domain.StatusPending:
			summary.Pending++
		}
		if row.Source == SourceVirtual {
			summary.Virtual++
		}
		switch {
		case r.Amount != nil:
			summary.Amount = summary.Amount.Add(*r.Amount)
		case r.MerchantAmount != nil:
			summary.Amount = summary.Amount.Add(*r.MerchantAmount)
		}
	}
	return summary
}
