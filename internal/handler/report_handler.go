package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"recon-dashboard/internal/domain"
	"recon-dashboard/internal/export"
	"recon-dashboard/internal/service"
	"recon-dashboard/pkg/logger"
	"recon-dashboard/pkg/response"
)

const dateLayout = "2006-01-02"

type ReportHandler struct {
	service service.ReportService
	now     func() time.Time
}

func NewReportHandler(service service.ReportService) *ReportHandler {
	return &ReportHandler{service: service, now: time.Now}
}

// EditReportRequest is an admin override. Omitted fields are left untouched.
type EditReportRequest struct {
	Status          *domain.MatchStatus   `json:"status"`
	ErrorMessage    *string               `json:"errorMessage"`
	Amount          *decimal.Decimal      `json:"amount" swaggertype:"string"`
	PointOfSaleName *string               `json:"pointOfSaleName"`
	PaymentMethod   *domain.PaymentMethod `json:"paymentMethod"`
	EditedBy        string                `json:"editedBy"`
}

// ListReports godoc
// @Summary List report records
// @Description Merge persisted reports with virtual records for merchant rows nobody reported yet
// @Tags reports
// @Produce json
// @Param owner_user_id query string false "Owner user id"
// @Param agent_id query string false "Agent id"
// @Param agent_code query string false "Agent code"
// @Param status query string false "MATCHED, ERROR, UNMATCHED or PENDING"
// @Param point_of_sale query string false "Point of sale, bill or merchant side"
// @Param from query string false "From date (YYYY-MM-DD or RFC3339)"
// @Param to query string false "To date, inclusive (YYYY-MM-DD or RFC3339)"
// @Param limit query int false "Page size"
// @Param cursor query string false "Id of the last record of the previous page"
// @Success 200 {object} response.Response{data=domain.ReportPage}
// @Failure 400 {object} response.Response
// @Failure 422 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/reports [get]
func (h *ReportHandler) ListReports(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	page, err := h.service.Project(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Failed to list reports")
		return
	}

	response.Success(c, http.StatusOK, "Reports retrieved successfully", page)
}

// GetReportSummary godoc
// @Summary Summarize report records
// @Description Count projected records per status over the whole filtered set
// @Tags reports
// @Produce json
// @Param owner_user_id query string false "Owner user id"
// @Param agent_id query string false "Agent id"
// @Param agent_code query string false "Agent code"
// @Param status query string false "MATCHED, ERROR, UNMATCHED or PENDING"
// @Param point_of_sale query string false "Point of sale"
// @Param from query string false "From date"
// @Param to query string false "To date"
// @Success 200 {object} response.Response{data=domain.ReportSummary}
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/reports/summary [get]
func (h *ReportHandler) GetReportSummary(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Failed to summarize reports")
		return
	}

	response.Success(c, http.StatusOK, "Report summary retrieved successfully", summary)
}

// ExportReports godoc
// @Summary Export report records
// @Description Download the filtered projection as an Excel workbook
// @Tags reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param owner_user_id query string false "Owner user id"
// @Param agent_code query string false "Agent code"
// @Param status query string false "Status"
// @Param from query string false "From date"
// @Param to query string false "To date"
// @Param title query string false "Used in the file name"
// @Success 200 {file} file
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/reports/export [get]
func (h *ReportHandler) ExportReports(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.service.Export(c.Request.Context(), filter, &buf); err != nil {
		respondError(c, err, "Failed to export reports")
		return
	}

	title := c.Query("title")
	if title == "" {
		title = "reconciliation " + filter.AgentCode
	}
	name := export.FileName(title, h.now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, export.ContentType, buf.Bytes())
}

// EditReport godoc
// @Summary Manually edit a report record
// @Description Override status, message or bill-side fields. Virtual records are persisted first.
// @Tags reports
// @Accept json
// @Produce json
// @Param X-User-ID header string false "Editing admin, overrides editedBy"
// @Param id path string true "Report record ID"
// @Param edit body EditReportRequest true "Fields to override"
// @Success 200 {object} response.Response{data=domain.ReportRecord}
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/reports/{id} [patch]
func (h *ReportHandler) EditReport(c *gin.Context) {
	var req EditReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.GetLogger().WithError(err).Error("Invalid request")
		response.ValidationError(c, err.Error())
		return
	}
	if uid := userID(c); uid != "" {
		req.EditedBy = uid
	}

	record, err := h.service.ManualEdit(c.Request.Context(), c.Param("id"), domain.ReportEdit{
		Status:          req.Status,
		ErrorMessage:    req.ErrorMessage,
		Amount:          req.Amount,
		PointOfSaleName: req.PointOfSaleName,
		PaymentMethod:   req.PaymentMethod,
		EditedBy:        req.EditedBy,
	})
	if err != nil {
		respondError(c, err, "Report")
		return
	}

	response.Success(c, http.StatusOK, "Report updated successfully", record)
}

// MaterializeReport godoc
// @Summary Persist a virtual report record
// @Description Store a virtual record under the report id reserved for its transaction code
// @Tags reports
// @Produce json
// @Param id path string true "Report record ID"
// @Success 200 {object} response.Response{data=domain.ReportRecord}
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/reports/{id}/materialize [post]
func (h *ReportHandler) MaterializeReport(c *gin.Context) {
	record, err := h.service.Materialize(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Report")
		return
	}

	response.Success(c, http.StatusOK, "Report materialized successfully", record)
}

// LookupTransactionCode godoc
// @Summary Look up a transaction code
// @Description Return the index entry linking a code to its bill, merchant row and report
// @Tags reports
// @Produce json
// @Param code path string true "Transaction code"
// @Success 200 {object} response.Response{data=domain.TransactionIndexEntry}
// @Failure 404 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/transaction-index/{code} [get]
func (h *ReportHandler) LookupTransactionCode(c *gin.Context) {
	entry, err := h.service.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err, "Transaction code")
		return
	}

	response.Success(c, http.StatusOK, "Transaction code retrieved successfully", entry)
}

// bindFilter reads the report filter from the query string. It writes the
// error response itself and reports false when the query is malformed.
func (h *ReportHandler) bindFilter(c *gin.Context) (domain.ReportFilter, bool) {
	filter := domain.ReportFilter{
		OwnerUserID:     c.Query("owner_user_id"),
		AgentID:         c.Query("agent_id"),
		AgentCode:       c.Query("agent_code"),
		Status:          domain.MatchStatus(c.Query("status")),
		PointOfSaleName: c.Query("point_of_sale"),
		Cursor:          c.Query("cursor"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "Invalid limit", "limit must be an integer")
			return filter, false
		}
		filter.Limit = limit
	}

	if raw := c.Query("from"); raw != "" {
		from, _, err := parseDate(raw)
		if err != nil {
			response.BadRequest(c, "Invalid from format", "Use YYYY-MM-DD or RFC3339 format")
			return filter, false
		}
		filter.From = &from
	}

	if raw := c.Query("to"); raw != "" {
		to, dateOnly, err := parseDate(raw)
		if err != nil {
			response.BadRequest(c, "Invalid to format", "Use YYYY-MM-DD or RFC3339 format")
			return filter, false
		}
		// Set end date to end of day
		if dateOnly {
			to = to.Add(24*time.Hour - time.Nanosecond)
		}
		filter.To = &to
	}

	return filter, true
}

func parseDate(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, false, err
}
