package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/ocr"
	"recon-dashboard/internal/service"
	"recon-dashboard/internal/store"
	"recon-dashboard/pkg/logger"
	"recon-dashboard/pkg/response"
)

// respondError maps service errors onto the API's status codes. Anything it
// does not recognise is an infrastructure failure.
func respondError(c *gin.Context, err error, message string) {
	var (
		dup  *domain.DuplicateBillError
		verr *domain.ValidationError
	)

	switch {
	case errors.As(err, &verr):
		response.ValidationError(c, verr.Error())
	case errors.As(err, &dup):
		response.Conflict(c, "DUPLICATE_BILL", "Transaction code already has a bill", dup.Error(), dup)
	case errors.Is(err, domain.ErrBillLocked):
		response.Conflict(c, "BILL_LOCKED", "Bill can no longer be changed", err.Error(), nil)
	case errors.Is(err, domain.ErrNotOwner):
		response.Forbidden(c, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		response.NotFound(c, message+": not found")
	case errors.Is(err, service.ErrAdminPassRunning):
		response.Conflict(c, "ADMIN_PASS_RUNNING", "Another import or dedupe is running", err.Error(), nil)
	case errors.Is(err, store.ErrContention):
		response.Conflict(c, "CONTENTION", "Too many concurrent updates, retry later", err.Error(), nil)
	case errors.Is(err, ocr.ErrExtractionFailed):
		response.UnprocessableEntity(c, "EXTRACTION_FAILED", "Could not read the bill image", err.Error())
	default:
		logger.GetLogger().WithError(err).Error(message)
		response.InternalError(c, message, err.Error())
	}
}
