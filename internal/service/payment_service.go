package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/metrics"
	"recon-dashboard/internal/repository"
	"recon-dashboard/internal/store"
	"recon-dashboard/pkg/logger"
)

// CreatePaymentRequest groups report records into one payout
type CreatePaymentRequest struct {
	ReportRecordIDs []string `json:"reportRecordIds" binding:"required,min=1"`
	CreatedBy       string   `json:"createdBy"`
}

// Materializer turns virtual report ids into persisted records
type Materializer interface {
	Materialize(ctx context.Context, id string) (*domain.ReportRecord, error)
}

type PaymentService interface {
	CreatePayment(ctx context.Context, kind domain.PaymentKind, req CreatePaymentRequest) (*domain.Payment, error)
	MarkPaid(ctx context.Context, kind domain.PaymentKind, reportID string) (*domain.Payment, error)
	Revert(ctx context.Context, kind domain.PaymentKind, reportID string) (*domain.Payment, error)
	List(ctx context.Context, kind domain.PaymentKind) ([]domain.Payment, error)
}

type paymentService struct {
	store        store.Store
	payments     repository.PaymentRepository
	reports      repository.ReportRepository
	bills        repository.BillRepository
	merchants    repository.MerchantTransactionRepository
	materializer Materializer
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewPaymentService(
	s store.Store,
	payments repository.PaymentRepository,
	reports repository.ReportRepository,
	bills repository.BillRepository,
	merchants repository.MerchantTransactionRepository,
	materializer Materializer,
	m *metrics.Metrics,
) PaymentService {
	return &paymentService{
		store:        s,
		payments:     payments,
		reports:      reports,
		bills:        bills,
		merchants:    merchants,
		materializer: materializer,
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// paymentFields names the report, bill and merchant fields of one payout leg
type paymentFields struct {
	id     string
	status string
	paidAt string
}

func fieldsFor(kind domain.PaymentKind) paymentFields {
	if kind == domain.PaymentKindAgent {
		return paymentFields{id: "agentPaymentId", status: "agentPaymentStatus", paidAt: "agentPaidAt"}
	}
	return paymentFields{id: "adminPaymentId", status: "adminPaymentStatus", paidAt: "adminPaidAt"}
}

func paymentIDOf(r domain.ReportRecord, kind domain.PaymentKind) string {
	if kind == domain.PaymentKindAgent {
		return r.AgentPaymentID
	}
	return r.AdminPaymentID
}

// CreatePayment creates an unpaid aggregate over the given records and stamps
// each record with its id. Virtual records are materialized first; records
// already on a payment of the same leg are rejected.
func (s *paymentService) CreatePayment(ctx context.Context, kind domain.PaymentKind, req CreatePaymentRequest) (*domain.Payment, error) {
	collection, err := repository.PaymentCollection(kind)
	if err != nil {
		return nil, err
	}
	if len(req.ReportRecordIDs) == 0 {
		return nil, domain.NewValidationError("reportRecordIds", "at least one report record is required")
	}

	records := make([]domain.ReportRecord, 0, len(req.ReportRecordIDs))
	seen := make(map[string]bool, len(req.ReportRecordIDs))
	total := decimal.Zero
	for _, id := range req.ReportRecordIDs {
		record, err := s.materializer.Materialize(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load report record %s: %w", id, err)
		}
		if seen[record.ID] {
			continue
		}
		seen[record.ID] = true
		if existing := paymentIDOf(*record, kind); existing != "" {
			return nil, domain.NewValidationError("reportRecordIds", fmt.Sprintf("record %s is already on %s payment %s", record.ID, kind, existing))
		}
		switch {
		case record.Amount != nil:
			total = total.Add(*record.Amount)
		case record.MerchantAmount != nil:
			total = total.Add(*record.MerchantAmount)
		}
		records = append(records, *record)
	}

	payment := &domain.Payment{
		ID:          s.store.NewID(),
		Kind:        kind,
		TotalAmount: total,
		Status:      domain.PaymentUnpaid,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   s.now(),
	}
	for _, r := range records {
		payment.ReportRecordIDs = append(payment.ReportRecordIDs, r.ID)
	}

	f := fieldsFor(kind)
	writes := map[string]any{
		store.DocPath(collection, payment.ID): payment,
	}
	for _, r := range records {
		writes[store.FieldPath(store.CollectionReports, r.ID, f.id)] = payment.ID
		writes[store.FieldPath(store.CollectionReports, r.ID, f.status)] = domain.PaymentUnpaid
	}
	if err := s.store.BatchWrite(ctx, writes); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"payment_id": payment.ID,
		"kind":       kind,
		"records":    len(records),
		"total":      total.String(),
	}).Info("Payment created")
	return payment, nil
}

// MarkPaid sets the payment, the record, its siblings and their source rows
// to paid in one batch.
func (s *paymentService) MarkPaid(ctx context.Context, kind domain.PaymentKind, reportID string) (*domain.Payment, error) {
	return s.propagate(ctx, kind, reportID, domain.PaymentPaid)
}

// Revert undoes MarkPaid, clearing the paid-at timestamps
func (s *paymentService) Revert(ctx context.Context, kind domain.PaymentKind, reportID string) (*domain.Payment, error) {
	return s.propagate(ctx, kind, reportID, domain.PaymentUnpaid)
}

func (s *paymentService) List(ctx context.Context, kind domain.PaymentKind) ([]domain.Payment, error) {
	return s.payments.List(ctx, kind)
}

func (s *paymentService) propagate(ctx context.Context, kind domain.PaymentKind, reportID string, status domain.PaymentStatus) (*domain.Payment, error) {
	collection, err := repository.PaymentCollection(kind)
	if err != nil {
		return nil, err
	}

	record, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	paymentID := paymentIDOf(*record, kind)
	if paymentID == "" {
		return nil, domain.NewValidationError("reportRecordId", fmt.Sprintf("record %s has no %s payment", reportID, kind))
	}
	if _, err := s.payments.GetByID(ctx, kind, paymentID); err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", paymentID, err)
	}

	all, err := s.reports.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load report records: %w", err)
	}

	// nil deletes the paid-at fields on revert
	var paidAt any
	if status == domain.PaymentPaid {
		paidAt = s.now()
	}

	f := fieldsFor(kind)
	writes := map[string]any{
		store.FieldPath(collection, paymentID, "status"): status,
		store.FieldPath(collection, paymentID, "paidAt"): paidAt,
	}
	siblings := 0
	for _, r := range all {
		if paymentIDOf(r, kind) != paymentID {
			continue
		}
		siblings++
		writes[store.FieldPath(store.CollectionReports, r.ID, f.status)] = status
		writes[store.FieldPath(store.CollectionReports, r.ID, f.paidAt)] = paidAt

		if r.UserBillID != "" {
			ok, err := found(s.bills.GetByID(ctx, r.UserBillID))
			if err != nil {
				return nil, err
			}
			if ok {
				writes[store.FieldPath(store.CollectionBills, r.UserBillID, f.status)] = status
			}
		}
		if r.MerchantTransactionID != "" {
			ok, err := found(s.merchants.GetByID(ctx, r.MerchantTransactionID))
			if err != nil {
				return nil, err
			}
			if ok {
				writes[store.FieldPath(store.CollectionMerchants, r.MerchantTransactionID, f.status)] = status
			}
		}
	}

	if err := s.store.BatchWrite(ctx, writes); err != nil {
		return nil, fmt.Errorf("failed to propagate payment status: %w", err)
	}
	s.metrics.ObservePayment(kind, status)

	logger.GetLogger().WithFields(map[string]interface{}{
		"payment_id": paymentID,
		"kind":       kind,
		"status":     status,
		"records":    siblings,
	}).Info("Payment status propagated")

	return s.payments.GetByID(ctx, kind, paymentID)
}

// found reports whether a source row exists, so field writes never create
// stub documents for rows that were removed.
func found[T any](_ *T, err error) (bool, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load source row: %w", err)
	}
	return true, nil
}
