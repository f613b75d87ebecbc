package parser

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"recon-dashboard/internal/domain"
	"recon-dashboard/pkg/logger"
)

// XLSXSettlementParser reads the first sheet of an .xlsx settlement export
type XLSXSettlementParser struct {
	opts Options
}

func NewXLSXSettlementParser(opts Options) *XLSXSettlementParser {
	return &XLSXSettlementParser{opts: opts}
}

func (p *XLSXSettlementParser) Parse(filePath string, batchSize int, callback func([]domain.MerchantTransaction) error) (*ParseStats, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	f, err := excelize.OpenFile(filePath)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("file", filePath).Error("Failed to open Excel file")
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file %s has no sheets", filepath.Base(filePath))
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet: %w", err)
	}
	defer rows.Close()

	var decoder *rowDecoder
	stats := &ParseStats{}
	batch := make([]domain.MerchantTransaction, 0, batchSize)
	lineNumber := 0

	for rows.Next() {
		lineNumber++
		record, err := rows.Columns()
		if err != nil {
			logger.GetLogger().WithError(err).WithField("line", lineNumber).Warn("Failed to read Excel row, skipping")
			if decoder != nil {
				stats.Rows++
				stats.Skipped++
			}
			continue
		}

		// leading blank rows before the header are common in exports
		if decoder == nil {
			if isBlank(record) {
				continue
			}
			decoder, err = newRowDecoder(record, p.opts)
			if err != nil {
				return nil, err
			}
			continue
		}
		if isBlank(record) {
			continue
		}
		stats.Rows++

		tx, err := decoder.decode(record, lineNumber)
		if err != nil {
			logger.GetLogger().WithError(err).WithField("line", lineNumber).Warn("Failed to parse record, skipping")
			stats.Skipped++
			continue
		}
		tx.SourceFile = filePath

		batch = append(batch, *tx)
		stats.Parsed++

		if len(batch) >= batchSize {
			if err := callback(batch); err != nil {
				return stats, err
			}
			batch = make([]domain.MerchantTransaction, 0, batchSize)
		}
	}
	if err := rows.Error(); err != nil {
		return stats, fmt.Errorf("failed to iterate sheet: %w", err)
	}
	if decoder == nil {
		return nil, fmt.Errorf("invalid settlement file: missing header row")
	}

	if len(batch) > 0 {
		if err := callback(batch); err != nil {
			return stats, err
		}
	}

	return stats, nil
}
