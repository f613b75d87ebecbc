package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"recon-dashboard/internal/config"
	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/matcher"
	"recon-dashboard/internal/metrics"
	"recon-dashboard/internal/ocr"
	"recon-dashboard/internal/projection"
	"recon-dashboard/internal/repository"
	"recon-dashboard/internal/txindex"
	"recon-dashboard/pkg/logger"
)

// SubmitBillRequest is a bill as entered by its owner
type SubmitBillRequest struct {
	OwnerUserID     string               `json:"ownerUserId" validate:"required,max=128"`
	AgentID         string               `json:"agentId,omitempty" validate:"max=128"`
	AgentCode       string               `json:"agentCode,omitempty" validate:"max=64"`
	TransactionCode string               `json:"transactionCode" validate:"required,max=128"`
	Amount          decimal.Decimal      `json:"amount" swaggertype:"string" example:"100000"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod,omitempty"`
	PointOfSaleName string               `json:"pointOfSaleName,omitempty" validate:"max=256"`
	InvoiceNumber   string               `json:"invoiceNumber,omitempty" validate:"max=64"`
	FileName        string               `json:"fileName,omitempty" validate:"max=256"`
	ImageReference  string               `json:"imageReference,omitempty"`
	TransactionDate *time.Time           `json:"transactionDate,omitempty"`
}

// ImageBillRequest is a bill screenshot to be read by the extractor
type ImageBillRequest struct {
	OwnerUserID string
	AgentID     string
	AgentCode   string
	FileName    string
	ContentType string
	Image       []byte
}

// UpdateBillRequest carries the owner's edits. Nil fields are left untouched;
// the transaction code cannot change once reserved.
type UpdateBillRequest struct {
	Amount          *decimal.Decimal      `json:"amount,omitempty" swaggertype:"string"`
	PaymentMethod   *domain.PaymentMethod `json:"paymentMethod,omitempty"`
	PointOfSaleName *string               `json:"pointOfSaleName,omitempty"`
	InvoiceNumber   *string               `json:"invoiceNumber,omitempty"`
	TransactionDate *time.Time            `json:"transactionDate,omitempty"`
}

// BillSubmission is a stored bill and the report record its match produced
type BillSubmission struct {
	Bill   domain.BillRecord   `json:"bill"`
	Report domain.ReportRecord `json:"report"`
}

type BillService interface {
	Submit(ctx context.Context, req SubmitBillRequest) (*BillSubmission, error)
	SubmitFromImage(ctx context.Context, req ImageBillRequest) (*BillSubmission, error)
	Update(ctx context.Context, userID, billID string, req UpdateBillRequest) (*BillSubmission, error)
	Delete(ctx context.Context, userID, billID string) error
	LockStatus(ctx context.Context, billID string) (*domain.BillLock, error)
}

type billService struct {
	bills      repository.BillRepository
	merchants  repository.MerchantTransactionRepository
	reports    repository.ReportRepository
	index      *txindex.Index
	extractor  ocr.Extractor
	matching   *config.MatchingConfigHolder
	metrics    *metrics.Metrics
	ocrTimeout time.Duration
	validate   *validator.Validate
	loader     *snapshotLoader
	now        func() time.Time
}

func NewBillService(
	bills repository.BillRepository,
	merchants repository.MerchantTransactionRepository,
	reports repository.ReportRepository,
	index *txindex.Index,
	extractor ocr.Extractor,
	matching *config.MatchingConfigHolder,
	m *metrics.Metrics,
	ocrTimeout time.Duration,
) BillService {
	if ocrTimeout <= 0 {
		ocrTimeout = ocr.DefaultTimeout
	}
	return &billService{
		bills:      bills,
		merchants:  merchants,
		reports:    reports,
		index:      index,
		extractor:  extractor,
		matching:   matching,
		metrics:    m,
		ocrTimeout: ocrTimeout,
		validate:   validator.New(),
		loader:     &snapshotLoader{bills: bills, merchants: merchants, reports: reports},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Submit reserves the transaction code, stores the bill and records its match
// against whatever merchant row the code already has.
func (s *billService) Submit(ctx context.Context, req SubmitBillRequest) (*BillSubmission, error) {
	if err := s.validateSubmit(&req); err != nil {
		return nil, err
	}

	bill := domain.BillRecord{
		ID:              s.bills.NextID(),
		OwnerUserID:     req.OwnerUserID,
		AgentID:         req.AgentID,
		AgentCode:       req.AgentCode,
		TransactionCode: domain.NormalizeCode(req.TransactionCode),
		Amount:          req.Amount,
		PaymentMethod:   req.PaymentMethod,
		PointOfSaleName: req.PointOfSaleName,
		InvoiceNumber:   req.InvoiceNumber,
		FileName:        req.FileName,
		ImageReference:  req.ImageReference,
		TransactionDate: req.TransactionDate,
		CreatedAt:       s.now(),
	}

	entry, err := s.index.ReserveForBill(ctx, bill.TransactionCode, bill.ID)
	if err != nil {
		var dup *domain.DuplicateBillError
		if errors.As(err, &dup) {
			s.describeDuplicate(ctx, dup)
			s.metrics.ObserveDuplicateBill()
			return nil, dup
		}
		return nil, fmt.Errorf("failed to reserve transaction code: %w", err)
	}

	if err := s.bills.Create(ctx, &bill); err != nil {
		s.releaseReservation(ctx, bill)
		return nil, fmt.Errorf("failed to create bill: %w", err)
	}

	report, err := s.syncReport(ctx, entry, bill, false)
	if err != nil {
		if delErr := s.bills.Delete(ctx, bill.ID); delErr != nil {
			logger.GetLogger().WithError(delErr).WithField("bill_id", bill.ID).Error("Failed to remove bill after report write failed")
		}
		s.releaseReservation(ctx, bill)
		return nil, err
	}
	s.metrics.ObserveMatch(report.Status)

	logger.GetLogger().WithFields(map[string]interface{}{
		"bill_id":          bill.ID,
		"transaction_code": bill.TransactionCode,
		"report_id":        report.ID,
		"status":           report.Status,
	}).Info("Bill submitted")

	return &BillSubmission{Bill: bill, Report: *report}, nil
}

// releaseReservation undoes ReserveForBill for a submission that did not
// complete. Failures are logged and the original error is returned instead.
func (s *billService) releaseReservation(ctx context.Context, bill domain.BillRecord) {
	if err := s.index.ReleaseBill(ctx, bill.TransactionCode, bill.ID); err != nil {
		logger.GetLogger().WithError(err).WithField("transaction_code", bill.TransactionCode).Error("Failed to release bill reservation")
	}
}

// SubmitFromImage reads the bill fields from an image, then submits them.
// An extraction that does not finish within the timeout fails the upload.
func (s *billService) SubmitFromImage(ctx context.Context, req ImageBillRequest) (*BillSubmission, error) {
	if len(req.Image) == 0 {
		return nil, domain.NewValidationError("image", "must not be empty")
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.ocrTimeout)
	defer cancel()

	extracted, err := s.extractor.Extract(extractCtx, req.Image, req.ContentType)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("file", req.FileName).Warn("Bill extraction failed")
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ocr.ErrExtractionFailed) {
			return nil, fmt.Errorf("%w: %v", ocr.ErrExtractionFailed, err)
		}
		return nil, err
	}

	return s.Submit(ctx, SubmitBillRequest{
		OwnerUserID:     req.OwnerUserID,
		AgentID:         req.AgentID,
		AgentCode:       req.AgentCode,
		TransactionCode: extracted.TransactionCode,
		Amount:          extracted.Amount,
		PaymentMethod:   extracted.PaymentMethod,
		PointOfSaleName: extracted.PointOfSaleName,
		InvoiceNumber:   extracted.InvoiceNumber,
		FileName:        req.FileName,
		TransactionDate: extracted.TransactionDate,
	})
}

// Update applies an owner's edits while the bill is still unlocked
func (s *billService) Update(ctx context.Context, userID, billID string, req UpdateBillRequest) (*BillSubmission, error) {
	bill, err := s.ownedUnlockedBill(ctx, userID, billID)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return nil, domain.NewValidationError("amount", "must be positive")
		}
		bill.Amount = *req.Amount
		fields["amount"] = bill.Amount
	}
	if req.PaymentMethod != nil {
		if !req.PaymentMethod.Valid() {
			return nil, domain.NewValidationError("paymentMethod", fmt.Sprintf("unknown method %q", *req.PaymentMethod))
		}
		bill.PaymentMethod = *req.PaymentMethod
		fields["paymentMethod"] = bill.PaymentMethod
	}
	if req.PointOfSaleName != nil {
		bill.PointOfSaleName = *req.PointOfSaleName
		fields["pointOfSaleName"] = bill.PointOfSaleName
	}
	if req.InvoiceNumber != nil {
		bill.InvoiceNumber = *req.InvoiceNumber
		fields["invoiceNumber"] = bill.InvoiceNumber
	}
	if req.TransactionDate != nil {
		bill.TransactionDate = req.TransactionDate
		fields["transactionDate"] = *bill.TransactionDate
	}
	if len(fields) == 0 {
		return nil, domain.NewValidationError("body", "no fields to update")
	}

	if err := s.bills.Update(ctx, bill.ID, fields); err != nil {
		return nil, fmt.Errorf("failed to update bill: %w", err)
	}

	entry, err := s.index.Lookup(ctx, bill.TransactionCode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up transaction code: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("transaction code %s has no index entry", bill.TransactionCode)
	}

	report, err := s.syncReport(ctx, entry, *bill, true)
	if err != nil {
		return nil, err
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"bill_id": bill.ID,
		"fields":  len(fields),
	}).Info("Bill updated")

	return &BillSubmission{Bill: *bill, Report: *report}, nil
}

// Delete removes an unlocked bill and frees its transaction code
func (s *billService) Delete(ctx context.Context, userID, billID string) error {
	bill, err := s.ownedUnlockedBill(ctx, userID, billID)
	if err != nil {
		return err
	}

	entry, err := s.index.Lookup(ctx, bill.TransactionCode)
	if err != nil {
		return fmt.Errorf("failed to look up transaction code: %w", err)
	}

	if err := s.bills.Delete(ctx, bill.ID); err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	if err := s.index.ReleaseBill(ctx, bill.TransactionCode, bill.ID); err != nil {
		return fmt.Errorf("failed to release transaction code: %w", err)
	}

	if entry != nil {
		if err := s.detachBill(ctx, entry.ReportRecordID, bill.ID); err != nil {
			return err
		}
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"bill_id":          bill.ID,
		"transaction_code": bill.TransactionCode,
	}).Info("Bill deleted")
	return nil
}

// LockStatus derives editability from the bill's merged report record
func (s *billService) LockStatus(ctx context.Context, billID string) (*domain.BillLock, error) {
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	lock, err := s.lockStatus(ctx, *bill)
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

func (s *billService) lockStatus(ctx context.Context, bill domain.BillRecord) (domain.BillLock, error) {
	snap, err := s.loader.Load(ctx)
	if err != nil {
		return domain.BillLock{}, err
	}
	_, projector := matching(s.matching)
	return projection.LockStatus(bill, projector.Merge(snap)), nil
}

func (s *billService) ownedUnlockedBill(ctx context.Context, userID, billID string) (*domain.BillRecord, error) {
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.OwnerUserID != userID {
		return nil, domain.ErrNotOwner
	}
	lock, err := s.lockStatus(ctx, *bill)
	if err != nil {
		return nil, err
	}
	if lock.Locked {
		return nil, domain.ErrBillLocked
	}
	return bill, nil
}

// syncReport writes the report record for the bill under the index's report
// id. An existing record keeps its merchant, payment and audit fields; a
// manual status override survives. With refresh set, bill fields are replaced
// rather than only filled in.
func (s *billService) syncReport(ctx context.Context, entry *domain.TransactionIndexEntry, bill domain.BillRecord, refresh bool) (*domain.ReportRecord, error) {
	merchant, err := s.merchantFor(ctx, entry)
	if err != nil {
		return nil, err
	}
	engine, _ := matching(s.matching)

	existing, err := s.reports.GetByID(ctx, entry.ReportRecordID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load report record: %w", err)
	}

	var report domain.ReportRecord
	if existing == nil {
		report = engine.BuildRecord(entry.ReportRecordID, &bill, merchant, s.now())
	} else {
		report = *existing
		if refresh {
			clearBillFields(&report)
		}
		matcher.ApplyBill(&report, bill)
		if merchant != nil {
			matcher.ApplyMerchant(&report, *merchant)
		}
		if !report.IsManuallyEdited {
			outcome := engine.Match(&bill, merchant)
			report.SetStatus(outcome.Status, outcome.ErrorMessage)
		}
	}

	if err := s.reports.Save(ctx, &report); err != nil {
		return nil, fmt.Errorf("failed to save report record: %w", err)
	}
	return &report, nil
}

func (s *billService) merchantFor(ctx context.Context, entry *domain.TransactionIndexEntry) (*domain.MerchantTransaction, error) {
	if entry.MerchantTransactionID == "" {
		return nil, nil
	}
	merchant, err := s.merchants.GetByID(ctx, entry.MerchantTransactionID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.GetLogger().WithField("merchant_transaction_id", entry.MerchantTransactionID).Warn("Index points at a missing merchant transaction")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant transaction: %w", err)
	}
	return merchant, nil
}

// detachBill drops the bill from its report record. A record with no merchant
// left is removed entirely.
func (s *billService) detachBill(ctx context.Context, reportID, billID string) error {
	report, err := s.reports.GetByID(ctx, reportID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load report record: %w", err)
	}
	if report.UserBillID != billID {
		return nil
	}

	if !report.HasMerchant() {
		if err := s.reports.Delete(ctx, reportID); err != nil {
			return fmt.Errorf("failed to delete report record: %w", err)
		}
		return nil
	}

	clearBillFields(report)
	report.SetStatus(domain.StatusUnmatched, matcher.MsgNoBill)
	if err := s.reports.Save(ctx, report); err != nil {
		return fmt.Errorf("failed to save report record: %w", err)
	}
	return nil
}

// describeDuplicate adds the conflicting bill's file name and invoice number
// so the rejection can be adjudicated by a person.
func (s *billService) describeDuplicate(ctx context.Context, dup *domain.DuplicateBillError) {
	existing, err := s.bills.GetByID(ctx, dup.ExistingBillID)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("bill_id", dup.ExistingBillID).Warn("Failed to load conflicting bill")
		return
	}
	dup.FileName = existing.FileName
	dup.InvoiceNumber = existing.InvoiceNumber
}

func (s *billService) validateSubmit(req *SubmitBillRequest) error {
	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return domain.NewValidationError(fieldErrs[0].Field(), fieldErrs[0].Tag())
		}
		return domain.NewValidationError("bill", err.Error())
	}
	if !domain.ValidCode(req.TransactionCode) {
		return domain.NewValidationError("transactionCode", "must not be empty")
	}
	if !req.Amount.IsPositive() {
		return domain.NewValidationError("amount", "must be positive")
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.MethodOther
	}
	if !req.PaymentMethod.Valid() {
		return domain.NewValidationError("paymentMethod", fmt.Sprintf("unknown method %q", req.PaymentMethod))
	}
	return nil
}

func clearBillFields(report *domain.ReportRecord) {
	report.UserBillID = ""
	report.Amount = nil
	report.PaymentMethod = ""
	report.PointOfSaleName = ""
	report.OwnerUserID = ""
	report.AgentID = ""
	report.AgentCode = ""
	report.TransactionDate = nil
	report.UserBillCreatedAt = nil
}
