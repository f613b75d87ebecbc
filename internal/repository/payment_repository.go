package repository

import (
	"context"
	"fmt"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/store"
	"recon-dashboard/pkg/logger"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, kind domain.PaymentKind, id string) (*domain.Payment, error)
	List(ctx context.Context, kind domain.PaymentKind) ([]domain.Payment, error)
}

type paymentRepository struct {
	store store.Store
}

func NewPaymentRepository(s store.Store) PaymentRepository {
	return &paymentRepository{store: s}
}

// PaymentCollection maps a payout leg to its collection
func PaymentCollection(kind domain.PaymentKind) (string, error) {
	switch kind {
	case domain.PaymentKindAdmin:
		return store.CollectionAdminPay, nil
	case domain.PaymentKindAgent:
		return store.CollectionAgentPay, nil
	default:
		return "", domain.NewValidationError("kind", fmt.Sprintf("unknown payment kind %q", kind))
	}
}

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	collection, err := PaymentCollection(payment.Kind)
	if err != nil {
		return err
	}
	if payment.ID == "" {
		payment.ID = r.store.NewID()
	}
	if err := put(ctx, r.store, collection, payment.ID, payment); err != nil {
		logger.GetLogger().WithError(err).WithField("payment_id", payment.ID).Error("Failed to create payment")
		return err
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, kind domain.PaymentKind, id string) (*domain.Payment, error) {
	collection, err := PaymentCollection(kind)
	if err != nil {
		return nil, err
	}
	return getByID[domain.Payment](ctx, r.store, collection, id)
}

func (r *paymentRepository) List(ctx context.Context, kind domain.PaymentKind) ([]domain.Payment, error) {
	collection, err := PaymentCollection(kind)
	if err != nil {
		return nil, err
	}
	return listAll[domain.Payment](ctx, r.store, collection)
}
