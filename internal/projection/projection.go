// Package projection derives the canonical, one-row-per-code list of report
// records from a snapshot of bills, merchant rows and persisted records.
package projection

import (
	"sort"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/matcher"
)

// Snapshot is everything a projection pass reads
type Snapshot struct {
	Bills     []domain.BillRecord
	Merchants []domain.MerchantTransaction
	Reports   []domain.ReportRecord
}

// Source tells where a projected row came from
type Source string

const (
	// SourceMerged is a persisted record merged with its merchant row
	SourceMerged Source = "merged"
	// SourceVirtual is synthesized from a merchant row and never persisted
	SourceVirtual Source = "virtual"
	// SourceBillOnly is a persisted record with no merchant seen yet
	SourceBillOnly Source = "bill_only"
)

// Row is one projected record together with its provenance
type Row struct {
	Record domain.ReportRecord
	Source Source
}

// Projector merges snapshots. It is safe for concurrent use.
type Projector struct {
	engine       *matcher.Engine
	defaultLimit int
	maxLimit     int
}

func New(engine *matcher.Engine, defaultLimit, maxLimit int) *Projector {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &Projector{engine: engine, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Merge builds one row per normalized transaction code. Merchant-driven rows
// take precedence over bill-only records, and within merchant rows the first
// writer per code wins.
func (p *Projector) Merge(snap Snapshot) []Row {
	reportByMerchant := make(map[string]domain.ReportRecord)
	for _, r := range snap.Reports {
		if r.MerchantTransactionID == "" {
			continue
		}
		if _, exists := reportByMerchant[r.MerchantTransactionID]; !exists {
			reportByMerchant[r.MerchantTransactionID] = r
		}
	}

	billByID := make(map[string]domain.BillRecord, len(snap.Bills))
	billsByCode := make(map[string][]domain.BillRecord)
	for _, b := range orderedBills(snap.Bills) {
		billByID[b.ID] = b
		code := domain.NormalizeCode(b.TransactionCode)
		if code == "" {
			continue
		}
		billsByCode[code] = append(billsByCode[code], b)
	}

	out := make(map[string]Row)
	order := make([]string, 0)
	insert := func(code string, row Row) {
		if _, exists := out[code]; exists {
			return
		}
		out[code] = row
		order = append(order, code)
	}

	for _, m := range orderedMerchants(snap.Merchants, reportByMerchant) {
		code := domain.NormalizeCode(m.TransactionCode)
		if code == "" || !m.Amount.IsPositive() {
			continue
		}
		if _, exists := out[code]; exists {
			continue
		}

		if persisted, ok := reportByMerchant[m.ID]; ok {
			insert(code, Row{Record: p.mergePersisted(persisted, m, billByID), Source: SourceMerged})
			continue
		}
		insert(code, Row{Record: p.synthesize(code, m, billsByCode[code]), Source: SourceVirtual})
	}

	for _, r := range snap.Reports {
		if r.MerchantTransactionID != "" {
			continue
		}
		code := domain.NormalizeCode(r.TransactionCode)
		if code == "" || r.Amount == nil || !r.Amount.IsPositive() {
			continue
		}
		r.TransactionCode = code
		insert(code, Row{Record: r, Source: SourceBillOnly})
	}

	rows := make([]Row, 0, len(order))
	for _, code := range order {
		rows = append(rows, out[code])
	}
	return rows
}

// mergePersisted fills merchant fields the persisted record does not carry
// yet. Status is kept when set and recomputed otherwise.
func (p *Projector) mergePersisted(r domain.ReportRecord, m domain.MerchantTransaction, billByID map[string]domain.BillRecord) domain.ReportRecord {
	if r.TransactionCode == "" {
		r.TransactionCode = domain.NormalizeCode(m.TransactionCode)
	}
	matcher.ApplyMerchant(&r, m)

	var bill *domain.BillRecord
	if b, ok := billByID[r.UserBillID]; ok && r.UserBillID != "" {
		matcher.ApplyBill(&r, b)
		bill = &b
	}
	if r.Status == "" {
		outcome := p.engine.Match(bill, &m)
		r.SetStatus(outcome.Status, outcome.ErrorMessage)
	} else if r.ReconciliationStatus == "" {
		r.ReconciliationStatus = r.Status
	}
	return r
}

// synthesize builds the virtual record for a merchant row with no persisted record
func (p *Projector) synthesize(code string, m domain.MerchantTransaction, candidates []domain.BillRecord) domain.ReportRecord {
	record := domain.ReportRecord{
		ID:              domain.VirtualID(m.ID),
		TransactionCode: code,
		CreatedAt:       m.CreatedAt,
	}
	matcher.ApplyMerchant(&record, m)

	if best, ok := p.engine.BestBill(candidates, m); ok {
		matcher.ApplyBill(&record, *best)
		record.SetStatus(domain.StatusMatched, "")
		return record
	}
	if len(candidates) > 0 {
		// Cite the failing checks against the oldest candidate.
		outcome := p.engine.Match(&candidates[0], &m)
		msg := matcher.MsgBillsDoNotMatch
		if outcome.ErrorMessage != "" {
			msg += ": " + outcome.ErrorMessage
		}
		record.SetStatus(domain.StatusError, msg)
		return record
	}
	record.SetStatus(domain.StatusUnmatched, matcher.MsgNoCandidateBills)
	return record
}

// orderedBills sorts candidate bills oldest first so "first matching bill"
// does not depend on store iteration order.
func orderedBills(bills []domain.BillRecord) []domain.BillRecord {
	out := make([]domain.BillRecord, len(bills))
	copy(out, bills)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// orderedMerchants puts rows already referenced by a persisted record first,
// then the rest oldest first. Re-importing a file therefore never changes
// which row wins a code.
func orderedMerchants(merchants []domain.MerchantTransaction, referenced map[string]domain.ReportRecord) []domain.MerchantTransaction {
	out := make([]domain.MerchantTransaction, len(merchants))
	copy(out, merchants)
	sort.SliceStable(out, func(i, j int) bool {
		_, ri := referenced[out[i].ID]
		_, rj := referenced[out[j].ID]
		if ri != rj {
			return ri
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
