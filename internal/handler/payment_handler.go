package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/service"
	"recon-dashboard/pkg/logger"
	"recon-dashboard/pkg/response"
)

type PaymentHandler struct {
	service service.PaymentService
}

func NewPaymentHandler(service service.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// CreatePayment godoc
// @Summary Create a payment
// @Description Group report records into one payout on the admin or agent leg
// @Tags payments
// @Accept json
// @Produce json
// @Param X-User-ID header string false "Creating user, overrides createdBy"
// @Param kind path string true "admin or agent"
// @Param request body service.CreatePaymentRequest true "Report records to pay"
// @Success 201 {object} response.Response{data=domain.Payment}
// @Failure 404 {object} response.Response
// @Failure 422 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/payments/{kind} [post]
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithError(err).Error("Invalid request")
		response.ValidationError(c, err.Error())
		return
	}
	if uid := userID(c); uid != "" {
		req.CreatedBy = uid
	}

	payment, err := h.service.CreatePayment(c.Request.Context(), domain.PaymentKind(c.Param("kind")), req)
	if err != nil {
		respondError(c, err, "Failed to create payment")
		return
	}

	response.Success(c, http.StatusCreated, "Payment created successfully", payment)
}

// ListPayments godoc
// @Summary List payments
// @Tags payments
// @Produce json
// @Param kind path string true "admin or agent"
// @Success 200 {object} response.Response{data=[]domain.Payment}
// @Failure 422 {object} response.Response
// @Router /api/v1/payments/{kind} [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	payments, err := h.service.List(c.Request.Context(), domain.PaymentKind(c.Param("kind")))
	if err != nil {
		respondError(c, err, "Failed to list payments")
		return
	}

	response.Success(c, http.StatusOK, "Payments retrieved successfully", payments)
}

// MarkPaid godoc
// @Summary Mark a report's payment as paid
// @Description Propagate PAID to the payment, every report on it and their source rows
// @Tags payments
// @Produce json
// @Param kind path string true "admin or agent"
// @Param id path string true "Report record ID"
// @Success 200 {object} response.Response{data=domain.Payment}
// @Failure 404 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/payments/{kind}/reports/{id}/paid [post]
func (h *PaymentHandler) MarkPaid(c *gin.Context) {
	payment, err := h.service.MarkPaid(c.Request.Context(), domain.PaymentKind(c.Param("kind")), c.Param("id"))
	if err != nil {
		respondError(c, err, "Payment")
		return
	}

	response.Success(c, http.StatusOK, "Payment marked as paid", payment)
}

// RevertPaid godoc
// @Summary Revert a report's payment to unpaid
// @Tags payments
// @Produce json
// @Param kind path string true "admin or agent"
// @Param id path string true "Report record ID"
// @Success 200 {object} response.Response{data=domain.Payment}
// @Failure 404 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/payments/{kind}/reports/{id}/paid [delete]
func (h *PaymentHandler) RevertPaid(c *gin.Context) {
	payment, err := h.service.Revert(c.Request.Context(), domain.PaymentKind(c.Param("kind")), c.Param("id"))
	if err != nil {
		respondError(c, err, "Payment")
		return
	}

	response.Success(c, http.StatusOK, "Payment reverted to unpaid", payment)
}
