// Package export renders projected report records as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/projection"
)

const (
	ReportSheet  = "Reports"
	SummarySheet = "Summary"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var reportHeadings = []string{
	"Report ID", "Transaction Code", "Status", "Error Message",
	"Amount", "Payment Method", "Point of Sale", "Owner", "Agent", "Agent Code",
	"Transaction Date", "Bill ID",
	"Merchant Transaction ID", "Merchant Amount", "Merchant Amount Before Discount",
	"Merchant Point of Sale", "Merchant Transaction Date", "Merchant File Data",
	"Admin Payment", "Agent Payment", "Manually Edited", "Edited Fields", "Source",
}

// FileName builds a download name such as "reconciliation-agent-a-20240501.xlsx"
func FileName(title string, at time.Time) string {
	name := slug.Make(title)
	if name == "" {
		name = "reconciliation"
	}
	return fmt.Sprintf("%s-%s.xlsx", name, at.Format("20060102"))
}

// WriteReports writes the rows and their summary as an .xlsx workbook
func WriteReports(w io.Writer, rows []projection.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ReportSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeRow(f, ReportSheet, 1, toCells(reportHeadings)); err != nil {
		return err
	}
	if err := f.SetRowStyle(ReportSheet, 1, 1, bold); err != nil {
		return err
	}
	for i, row := range rows {
		if err := writeRow(f, ReportSheet, i+2, reportCells(row)); err != nil {
			return err
		}
	}
	if err := f.SetPanes(ReportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	summary := projection.Summarize(rows)
	summaryRows := [][]interface{}{
		{"Total", summary.Total},
		{"Matched", summary.Matched},
		{"Error", summary.Error},
		{"Unmatched", summary.Unmatched},
		{"Pending", summary.Pending},
		{"Virtual", summary.Virtual},
		{"Amount", summary.Amount.InexactFloat64()},
	}
	for i, cells := range summaryRows {
		if err := writeRow(f, SummarySheet, i+1, cells); err != nil {
			return err
		}
	}
	if err := f.SetColStyle(SummarySheet, "A", bold); err != nil {
		return err
	}

	return f.Write(w)
}

func writeRow(f *excelize.File, sheet string, rowNo int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func reportCells(row projection.Row) []interface{} {
	r := row.Record
	return []interface{}{
		r.ID,
		r.TransactionCode,
		string(r.Status),
		r.ErrorMessage,
		amountCell(r.Amount),
		string(r.PaymentMethod),
		r.PointOfSaleName,
		r.OwnerUserID,
		r.AgentID,
		r.AgentCode,
		dateCell(r.TransactionDate),
		r.UserBillID,
		r.MerchantTransactionID,
		amountCell(r.MerchantAmount),
		amountCell(r.MerchantAmountBeforeDiscount),
		r.MerchantPointOfSaleName,
		dateCell(r.MerchantTransactionDate),
		fileData(r.MerchantsFileData),
		paymentCell(r.AdminPaymentStatus, r.AdminPaidAt),
		paymentCell(r.AgentPaymentStatus, r.AgentPaidAt),
		r.IsManuallyEdited,
		strings.Join(r.EditedFields, ", "),
		string(row.Source),
	}
}

func amountCell(d *decimal.Decimal) interface{} {
	if d == nil {
		return ""
	}
	return d.InexactFloat64()
}

func dateCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func paymentCell(status domain.PaymentStatus, paidAt *time.Time) string {
	if status == "" {
		return ""
	}
	if paidAt == nil {
		return string(status)
	}
	return fmt.Sprintf("%s (%s)", status, paidAt.Format("2006-01-02"))
}

func fileData(raw map[string]string) string {
	if len(raw) == 0 {
		return ""
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + raw[k]
	}
	return strings.Join(parts, "; ")
}
