package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	h(c)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func TestSuccess_CarriesRequestID(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		c.Header(requestIDHeader, "req-1")
		Success(c, http.StatusCreated, "created", map[string]string{"id": "b1"})
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, body.Success)
	assert.Equal(t, "req-1", body.RequestID)
	assert.Nil(t, body.Error)
	assert.Equal(t, map[string]interface{}{"id": "b1"}, body.Data)
}

func TestConflict_KeepsData(t *testing.T) {
	w, body := serve(t, func(c *gin.Context) {
		Conflict(c, "DUPLICATE_BILL", "Bill already submitted", "TX1", map[string]string{"existingBillId": "b1"})
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, body.Success)
	assert.Empty(t, body.RequestID)
	require.NotNil(t, body.Error)
	assert.Equal(t, "DUPLICATE_BILL", body.Error.Code)
	assert.Equal(t, "TX1", body.Error.Details)
	assert.NotNil(t, body.Data)
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(c *gin.Context)
		status int
		code   string
	}{
		{"bad request", func(c *gin.Context) { BadRequest(c, "bad", "limit") }, http.StatusBadRequest, "BAD_REQUEST"},
		{"forbidden", func(c *gin.Context) { Forbidden(c, "not yours") }, http.StatusForbidden, "FORBIDDEN"},
		{"not found", func(c *gin.Context) { NotFound(c, "missing") }, http.StatusNotFound, "NOT_FOUND"},
		{"validation", func(c *gin.Context) { ValidationError(c, "amount") }, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unprocessable", func(c *gin.Context) {
			UnprocessableEntity(c, "EXTRACTION_FAILED", "unreadable", "")
		}, http.StatusUnprocessableEntity, "EXTRACTION_FAILED"},
		{"internal", func(c *gin.Context) { InternalError(c, "boom", "") }, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := serve(t, tt.write)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, body.Success)
			assert.Nil(t, body.Data)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, body.Message, body.Error.Message)
		})
	}
}
