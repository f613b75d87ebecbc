package parser

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"

	"recon-dashboard/internal/domain"
)

// SettlementParser streams merchant settlement rows in batches. Malformed
// rows are skipped and counted, never fatal.
type SettlementParser interface {
	Parse(filePath string, batchSize int, callback func([]domain.MerchantTransaction) error) (*ParseStats, error)
}

// ParseStats counts what a parse pass saw
type ParseStats struct {
	Rows    int `json:"rows"`
	Parsed  int `json:"parsed"`
	Skipped int `json:"skipped"`
}

// Options tune row decoding
type Options struct {
	// PhoneRegion is the default region for numbers without a country prefix
	PhoneRegion string
	// Location is applied to dates that carry no zone
	Location *time.Location
}

func (o Options) withDefaults() Options {
	if o.PhoneRegion == "" {
		o.PhoneRegion = "VN"
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

// ForFile picks the parser matching the file extension
func ForFile(filePath string, opts Options) (SettlementParser, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv":
		return NewCSVSettlementParser(opts), nil
	case ".xlsx":
		return NewXLSXSettlementParser(opts), nil
	default:
		return nil, fmt.Errorf("unsupported settlement file type: %s", filepath.Ext(filePath))
	}
}

// Canonical column keys
const (
	colCode           = "transaction_code"
	colAmount         = "amount"
	colAmountBefore   = "amount_before_discount"
	colPointOfSale    = "point_of_sale"
	colBranch         = "branch"
	colInvoice        = "invoice_number"
	colPhone          = "phone_number"
	colPromotion      = "promotion_code"
	colTransactionDay = "transaction_date"
)

// headerAliases maps slugged header names to canonical columns
var headerAliases = map[string]string{
	"transaction-code":       colCode,
	"transaction-id":         colCode,
	"trx-id":                 colCode,
	"trx-ref-id":             colCode,
	"ma-giao-dich":           colCode,
	"amount":                 colAmount,
	"settled-amount":         colAmount,
	"so-tien":                colAmount,
	"thanh-tien":             colAmount,
	"amount-before-discount": colAmountBefore,
	"gross-amount":           colAmountBefore,
	"so-tien-truoc-giam-gia": colAmountBefore,
	"point-of-sale":          colPointOfSale,
	"point-of-sale-name":     colPointOfSale,
	"store":                  colPointOfSale,
	"diem-ban":               colPointOfSale,
	"branch":                 colBranch,
	"branch-name":            colBranch,
	"chi-nhanh":              colBranch,
	"invoice-number":         colInvoice,
	"invoice":                colInvoice,
	"so-hoa-don":             colInvoice,
	"phone":                  colPhone,
	"phone-number":           colPhone,
	"so-dien-thoai":          colPhone,
	"promotion-code":         colPromotion,
	"promo-code":             colPromotion,
	"ma-khuyen-mai":          colPromotion,
	"transaction-date":       colTransactionDay,
	"date":                   colTransactionDay,
	"ngay-giao-dich":         colTransactionDay,
}

var requiredColumns = []string{colCode, colAmount}

// canonicalHeader slugs a header cell so "Mã giao dịch", "ma_giao_dich" and
// "MA GIAO DICH" all land on the same alias.
func canonicalHeader(raw string) string {
	s := strings.ReplaceAll(slug.Make(strings.TrimSpace(raw)), "_", "-")
	if canonical, ok := headerAliases[s]; ok {
		return canonical
	}
	return ""
}

// rowDecoder turns one settlement row into a merchant transaction
type rowDecoder struct {
	header   []string
	columns  map[string]int
	opts     Options
	validate *validator.Validate
}

func newRowDecoder(header []string, opts Options) (*rowDecoder, error) {
	columns := make(map[string]int)
	trimmed := make([]string, len(header))
	for i, col := range header {
		trimmed[i] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
		if canonical := canonicalHeader(trimmed[i]); canonical != "" {
			if _, exists := columns[canonical]; !exists {
				columns[canonical] = i
			}
		}
	}
	for _, col := range requiredColumns {
		if _, exists := columns[col]; !exists {
			return nil, fmt.Errorf("invalid settlement file: missing required columns (transaction code, amount)")
		}
	}
	return &rowDecoder{
		header:   trimmed,
		columns:  columns,
		opts:     opts.withDefaults(),
		validate: validator.New(),
	}, nil
}

// settlementRow is the validated shape of the raw cells
type settlementRow struct {
	TransactionCode string `validate:"required,max=128"`
	Amount          string `validate:"required,max=32"`
	InvoiceNumber   string `validate:"max=64"`
	PromotionCode   string `validate:"max=64"`
}

func (d *rowDecoder) cell(record []string, column string) string {
	idx, ok := d.columns[column]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func (d *rowDecoder) decode(record []string, lineNumber int) (*domain.MerchantTransaction, error) {
	row := settlementRow{
		TransactionCode: d.cell(record, colCode),
		Amount:          d.cell(record, colAmount),
		InvoiceNumber:   d.cell(record, colInvoice),
		PromotionCode:   d.cell(record, colPromotion),
	}
	if err := d.validate.Struct(row); err != nil {
		return nil, fmt.Errorf("invalid row at line %d: %w", lineNumber, err)
	}

	code := domain.NormalizeCode(row.TransactionCode)
	if code == "" {
		return nil, domain.NewValidationError("transactionCode", fmt.Sprintf("empty at line %d", lineNumber))
	}

	amount, err := ParseAmount(row.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount '%s' at line %d: %w", row.Amount, lineNumber, err)
	}
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("amount", fmt.Sprintf("must be positive at line %d", lineNumber))
	}

	tx := &domain.MerchantTransaction{
		TransactionCode: code,
		Amount:          amount,
		PointOfSaleName: d.cell(record, colPointOfSale),
		BranchName:      d.cell(record, colBranch),
		InvoiceNumber:   row.InvoiceNumber,
		PhoneNumber:     NormalizePhone(d.cell(record, colPhone), d.opts.PhoneRegion),
		PromotionCode:   row.PromotionCode,
		RawData:         d.rawData(record),
	}

	if raw := d.cell(record, colAmountBefore); raw != "" {
		before, err := ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid amount before discount '%s' at line %d: %w", raw, lineNumber, err)
		}
		tx.AmountBeforeDiscount = &before
	}

	if raw := d.cell(record, colTransactionDay); raw != "" {
		date, err := parseDate(raw, d.opts.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid date '%s' at line %d: %w", raw, lineNumber, err)
		}
		tx.TransactionDate = &date
	}

	return tx, nil
}

func (d *rowDecoder) rawData(record []string) map[string]string {
	raw := make(map[string]string, len(d.header))
	for i, name := range d.header {
		if name == "" || i >= len(record) {
			continue
		}
		raw[name] = strings.TrimSpace(record[i])
	}
	return raw
}

var amountCleaner = strings.NewReplacer(
	" ", "",
	"\u00a0", "",
	",", "",
	"VND", "",
	"vnd", "",
	"đ", "",
	"₫", "",
)

// ParseAmount reads amounts as they appear in settlement exports:
// "100000", "100,000", "100,000.50", "100.000.000 đ".
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := amountCleaner.Replace(strings.TrimSpace(raw))
	if strings.Count(cleaned, ".") > 1 {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	return decimal.NewFromString(cleaned)
}

func parseDate(dateStr string, loc *time.Location) (time.Time, error) {
	formats := []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006-01-02T15:04:05",
		"02/01/2006",
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
		"2006/01/02",
		"02-01-2006",
	}

	if t, err := time.Parse(time.RFC3339, dateStr); err == nil {
		return t, nil
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, dateStr, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", dateStr)
}
