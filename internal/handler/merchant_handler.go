package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"recon-dashboard/internal/service"
	"recon-dashboard/pkg/logger"
	"recon-dashboard/pkg/response"
)

var errMissingFiles = errors.New("no settlement files in the \"files\" field")

type MerchantHandler struct {
	service   service.MerchantImportService
	importDir string
}

// NewMerchantHandler stores uploaded settlement files under importDir until
// the import finishes. An empty importDir uses the OS temp directory.
func NewMerchantHandler(service service.MerchantImportService, importDir string) *MerchantHandler {
	return &MerchantHandler{service: service, importDir: importDir}
}

type ImportRequest struct {
	FilePaths []string `json:"file_paths" binding:"required,min=1"`
}

// ImportMerchantTransactions godoc
// @Summary Import merchant settlement files
// @Description Import CSV or XLSX settlement exports, uploaded as "files" or referenced by server path
// @Tags merchant-transactions
// @Accept json,mpfd
// @Produce json
// @Param request body ImportRequest false "Server-side file paths"
// @Param files formData file false "Settlement files"
// @Success 200 {object} response.Response{data=[]domain.ImportResult}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 422 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/merchant-transactions/import [post]
func (h *MerchantHandler) ImportMerchantTransactions(c *gin.Context) {
	var paths []string

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		dir, err := h.saveUploads(c)
		if err != nil {
			response.BadRequest(c, "Invalid upload", err.Error())
			return
		}
		defer os.RemoveAll(dir)

		entries, err := os.ReadDir(dir)
		if err != nil {
			response.InternalError(c, "Failed to read uploads", err.Error())
			return
		}
		for _, e := range entries {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	} else {
		var req ImportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.GetLogger().WithError(err).Error("Invalid request")
			response.ValidationError(c, err.Error())
			return
		}
		paths = req.FilePaths
	}

	logger.GetLogger().WithField("files", len(paths)).Info("Starting merchant import")

	results, err := h.service.Import(c.Request.Context(), paths)
	if err != nil {
		respondError(c, err, "Merchant import failed")
		return
	}

	response.Success(c, http.StatusOK, "Merchant transactions imported successfully", results)
}

// saveUploads writes each uploaded file into a fresh directory, keeping the
// original base name so the parser can pick the format from its extension.
func (h *MerchantHandler) saveUploads(c *gin.Context) (string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return "", err
	}
	files := form.File["files"]
	if len(files) == 0 {
		return "", errMissingFiles
	}

	if h.importDir != "" {
		if err := os.MkdirAll(h.importDir, 0o755); err != nil {
			return "", err
		}
	}
	dir, err := os.MkdirTemp(h.importDir, "import-")
	if err != nil {
		return "", err
	}

	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if name == "." || name == string(filepath.Separator) {
			os.RemoveAll(dir)
			return "", errMissingFiles
		}
		if err := c.SaveUploadedFile(fh, filepath.Join(dir, name)); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}

// DedupeMerchantTransactions godoc
// @Summary Remove duplicate merchant rows
// @Description Keep the newest row per transaction code and repoint the index and reports at it
// @Tags merchant-transactions
// @Produce json
// @Success 200 {object} response.Response{data=domain.DedupeResult}
// @Failure 409 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/merchant-transactions/dedupe [post]
func (h *MerchantHandler) DedupeMerchantTransactions(c *gin.Context) {
	result, err := h.service.Dedupe(c.Request.Context())
	if err != nil {
		respondError(c, err, "Merchant dedupe failed")
		return
	}

	response.Success(c, http.StatusOK, "Merchant transactions deduplicated successfully", result)
}

// ListMerchantTransactions godoc
// @Summary List merchant transactions
// @Description List imported merchant rows, optionally for one transaction code
// @Tags merchant-transactions
// @Produce json
// @Param transaction_code query string false "Transaction code"
// @Success 200 {object} response.Response{data=[]domain.MerchantTransaction}
// @Failure 500 {object} response.Response
// @Router /api/v1/merchant-transactions [get]
func (h *MerchantHandler) ListMerchantTransactions(c *gin.Context) {
	rows, err := h.service.List(c.Request.Context(), c.Query("transaction_code"))
	if err != nil {
		respondError(c, err, "Failed to list merchant transactions")
		return
	}

	response.Success(c, http.StatusOK, "Merchant transactions retrieved successfully", rows)
}
