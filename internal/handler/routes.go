package handler

import "github.com/gin-gonic/gin"

// Handlers bundles the API's handlers for route registration
type Handlers struct {
	Bills     *BillHandler
	Merchants *MerchantHandler
	Reports   *ReportHandler
	Payments  *PaymentHandler
}

// RegisterRoutes mounts the v1 API under the given group
func RegisterRoutes(v1 *gin.RouterGroup, h Handlers) {
	// Bill routes
	bills := v1.Group("/bills")
	{
		bills.POST("", h.Bills.SubmitBill)
		bills.POST("/extract", h.Bills.ExtractBill)
		bills.PUT("/:id", h.Bills.UpdateBill)
		bills.DELETE("/:id", h.Bills.DeleteBill)
		bills.GET("/:id/lock", h.Bills.GetBillLock)
	}

	// Merchant transaction routes
	merchants := v1.Group("/merchant-transactions")
	{
		merchants.POST("/import", h.Merchants.ImportMerchantTransactions)
		merchants.POST("/dedupe", h.Merchants.DedupeMerchantTransactions)
		merchants.GET("", h.Merchants.ListMerchantTransactions)
	}

	// Report routes
	reports := v1.Group("/reports")
	{
		reports.GET("", h.Reports.ListReports)
		reports.GET("/summary", h.Reports.GetReportSummary)
		reports.GET("/export", h.Reports.ExportReports)
		reports.PATCH("/:id", h.Reports.EditReport)
		reports.POST("/:id/materialize", h.Reports.MaterializeReport)
	}
	v1.GET("/transaction-index/:code", h.Reports.LookupTransactionCode)

	// Payment routes
	payments := v1.Group("/payments/:kind")
	{
		payments.POST("", h.Payments.CreatePayment)
		payments.GET("", h.Payments.ListPayments)
		payments.POST("/reports/:id/paid", h.Payments.MarkPaid)
		payments.DELETE("/reports/:id/paid", h.Payments.RevertPaid)
	}
}
