package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"recon-dashboard/internal/service"
	"recon-dashboard/pkg/logger"
	"recon-dashboard/pkg/response"
)

// maxImageSize bounds bill screenshots accepted for extraction
const maxImageSize = 10 << 20

type BillHandler struct {
	service service.BillService
}

func NewBillHandler(service service.BillService) *BillHandler {
	return &BillHandler{service: service}
}

// SubmitBill godoc
// @Summary Submit a bill
// @Description Reserve the bill's transaction code, store it and record its reconciliation outcome
// @Tags bills
// @Accept json
// @Produce json
// @Param X-User-ID header string false "Submitting user, overrides ownerUserId"
// @Param bill body service.SubmitBillRequest true "Bill data"
// @Success 201 {object} response.Response{data=service.BillSubmission}
// @Failure 409 {object} response.Response{data=domain.DuplicateBillError}
// @Failure 422 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/bills [post]
func (h *BillHandler) SubmitBill(c *gin.Context) {
	var req service.SubmitBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithError(err).Error("Invalid request")
		response.ValidationError(c, err.Error())
		return
	}
	if uid := userID(c); uid != "" {
		req.OwnerUserID = uid
	}

	submission, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to submit bill")
		return
	}

	response.Success(c, http.StatusCreated, "Bill submitted successfully", submission)
}

// ExtractBill godoc
// @Summary Submit a bill from an image
// @Description Read the bill fields from a screenshot, then submit it
// @Tags bills
// @Accept mpfd
// @Produce json
// @Param X-User-ID header string true "Submitting user"
// @Param image formData file true "Bill image"
// @Param agent_id formData string false "Agent id"
// @Param agent_code formData string false "Agent code"
// @Success 201 {object} response.Response{data=service.BillSubmission}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response{data=domain.DuplicateBillError}
// @Failure 422 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/bills/extract [post]
func (h *BillHandler) ExtractBill(c *gin.Context) {
	owner := userID(c)
	if owner == "" {
		response.BadRequest(c, "Missing user", "Set the "+UserIDHeader+" header")
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		response.BadRequest(c, "Missing image", err.Error())
		return
	}
	if fileHeader.Size > maxImageSize {
		response.BadRequest(c, "Image too large", "Images are limited to 10 MiB")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.BadRequest(c, "Unreadable image", err.Error())
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxImageSize))
	if err != nil {
		response.BadRequest(c, "Unreadable image", err.Error())
		return
	}

	submission, err := h.service.SubmitFromImage(c.Request.Context(), service.ImageBillRequest{
		OwnerUserID: owner,
		AgentID:     c.PostForm("agent_id"),
		AgentCode:   c.PostForm("agent_code"),
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Image:       image,
	})
	if err != nil {
		respondError(c, err, "Failed to submit bill")
		return
	}

	response.Success(c, http.StatusCreated, "Bill submitted successfully", submission)
}

// UpdateBill godoc
// @Summary Edit a bill
// @Description Owners may edit a bill until merchant data exists for its code
// @Tags bills
// @Accept json
// @Produce json
// @Param X-User-ID header string true "Bill owner"
// @Param id path string true "Bill ID"
// @Param bill body service.UpdateBillRequest true "Fields to change"
// @Success 200 {object} response.Response{data=service.BillSubmission}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/bills/{id} [put]
func (h *BillHandler) UpdateBill(c *gin.Context) {
	var req service.UpdateBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithError(err).Error("Invalid request")
		response.ValidationError(c, err.Error())
		return
	}

	submission, err := h.service.Update(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err, "Failed to update bill")
		return
	}

	response.Success(c, http.StatusOK, "Bill updated successfully", submission)
}

// DeleteBill godoc
// @Summary Delete a bill
// @Description Owners may delete a bill until merchant data exists for its code
// @Tags bills
// @Produce json
// @Param X-User-ID header string true "Bill owner"
// @Param id path string true "Bill ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/bills/{id} [delete]
func (h *BillHandler) DeleteBill(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		respondError(c, err, "Failed to delete bill")
		return
	}

	response.Success(c, http.StatusOK, "Bill deleted successfully", nil)
}

// GetBillLock godoc
// @Summary Get a bill's lock state
// @Description Whether the bill is still editable, derived from its merged report record
// @Tags bills
// @Produce json
// @Param id path string true "Bill ID"
// @Success 200 {object} response.Response{data=domain.BillLock}
// @Failure 404 {object} response.Response
// @Router /api/v1/bills/{id}/lock [get]
func (h *BillHandler) GetBillLock(c *gin.Context) {
	lock, err := h.service.LockStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Bill")
		return
	}

	response.Success(c, http.StatusOK, "Bill lock retrieved successfully", lock)
}
