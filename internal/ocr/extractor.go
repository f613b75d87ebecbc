// Package ocr talks to the image-to-fields service that reads bill screenshots.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"recon-dashboard/internal/domain"
	"recon-dashboard/pkg/logger"
)

// DefaultTimeout bounds one extraction call
const DefaultTimeout = 30 * time.Second

var ErrExtractionFailed = errors.New("ocr: failed to extract bill fields")

//go:generate mockgen -source=extractor.go -destination=mocks/extractor_mock.go -package=mocks

// Extractor turns a bill image into structured fields
type Extractor interface {
	Extract(ctx context.Context, image []byte, contentType string) (*domain.ExtractedBill, error)
}

// HTTPExtractor calls a remote extraction endpoint with a JSON body
type HTTPExtractor struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPExtractor(endpoint, apiKey string, timeout time.Duration) *HTTPExtractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPExtractor{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type extractRequest struct {
	Image       string `json:"image"`
	ContentType string `json:"contentType"`
}

type extractResponse struct {
	TransactionCode string `json:"transactionCode"`
	Amount          string `json:"amount"`
	PaymentMethod   string `json:"paymentMethod"`
	PointOfSaleName string `json:"pointOfSaleName"`
	InvoiceNumber   string `json:"invoiceNumber"`
	Timestamp       string `json:"timestamp"`
}

func (e *HTTPExtractor) Extract(ctx context.Context, image []byte, contentType string) (*domain.ExtractedBill, error) {
	if len(image) == 0 {
		return nil, domain.NewValidationError("image", "must not be empty")
	}

	body, err := json.Marshal(extractRequest{
		Image:       base64.StdEncoding.EncodeToString(image),
		ContentType: contentType,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("endpoint", e.endpoint).Error("Extraction request failed")
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.GetLogger().WithFields(map[string]interface{}{
			"status": resp.StatusCode,
			"body":   string(snippet),
		}).Warn("Extraction service returned an error")
		return nil, fmt.Errorf("%w: status %d", ErrExtractionFailed, resp.StatusCode)
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrExtractionFailed, err)
	}
	return out.toBill()
}

func (r extractResponse) toBill() (*domain.ExtractedBill, error) {
	bill := &domain.ExtractedBill{
		TransactionCode: strings.TrimSpace(r.TransactionCode),
		PaymentMethod:   ParsePaymentMethod(r.PaymentMethod),
		PointOfSaleName: strings.TrimSpace(r.PointOfSaleName),
		InvoiceNumber:   strings.TrimSpace(r.InvoiceNumber),
	}
	if bill.TransactionCode == "" {
		return nil, fmt.Errorf("%w: no transaction code", ErrExtractionFailed)
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(r.Amount), ",", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", ErrExtractionFailed, r.Amount)
	}
	bill.Amount = amount

	if r.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			bill.TransactionDate = &ts
		}
	}
	return bill, nil
}

// ParsePaymentMethod maps the loose labels OCR returns onto the enum
func ParsePaymentMethod(raw string) domain.PaymentMethod {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_")) {
	case "QR", "QR_CODE", "VIETQR":
		return domain.MethodQRCode
	case "CARD", "CREDIT_CARD", "DEBIT_CARD", "POS":
		return domain.MethodCard
	case "BANK_TRANSFER", "TRANSFER", "CHUYEN_KHOAN":
		return domain.MethodBankTransfer
	case "E_WALLET", "EWALLET", "MOMO", "ZALOPAY":
		return domain.MethodEWallet
	default:
		return domain.MethodOther
	}
}
