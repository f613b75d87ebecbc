package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"recon-dashboard/internal/domain"
	"recon-dashboard/pkg/logger"
)

// CSVSettlementParser implements a streaming CSV parser for merchant settlement exports
type CSVSettlementParser struct {
	opts Options
}

func NewCSVSettlementParser(opts Options) *CSVSettlementParser {
	return &CSVSettlementParser{opts: opts}
}

// Parse reads the CSV file in streaming mode and hands rows over in batches
func (p *CSVSettlementParser) Parse(filePath string, batchSize int, callback func([]domain.MerchantTransaction) error) (*ParseStats, error) {
	file, err := os.Open(filePath)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("file", filePath).Error("Failed to open file")
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return p.parseReader(file, filePath, batchSize, callback)
}

func (p *CSVSettlementParser) parseReader(r io.Reader, source string, batchSize int, callback func([]domain.MerchantTransaction) error) (*ParseStats, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	// Read header
	header, err := reader.Read()
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to read CSV header")
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	decoder, err := newRowDecoder(header, p.opts)
	if err != nil {
		return nil, err
	}

	stats := &ParseStats{}
	batch := make([]domain.MerchantTransaction, 0, batchSize)
	lineNumber := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNumber++
		if err != nil {
			logger.GetLogger().WithError(err).WithField("line", lineNumber).Warn("Failed to read CSV row, skipping")
			stats.Rows++
			stats.Skipped++
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
		tx.SourceFile = source

		batch = append(batch, *tx)
		stats.Parsed++

		if len(batch) >= batchSize {
			if err := callback(batch); err != nil {
				return stats, err
			}
			batch = make([]domain.MerchantTransaction, 0, batchSize)
		}
	}

	// Process remaining items
	if len(batch) > 0 {
		if err := callback(batch); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if len(cell) > 0 {
			return false
		}
	}
	return true
}
