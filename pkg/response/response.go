// Package response writes the JSON envelope every API endpoint answers with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// requestIDHeader is set by the request id middleware before handlers run
const requestIDHeader = "X-Request-ID"

// Response is the envelope. Data is present on success and on conflicts that
// identify the record they collided with.
type Response struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	RequestID string       `json:"requestId,omitempty"`
	Data      interface{}  `json:"data,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func write(c *gin.Context, statusCode int, body Response) {
	body.RequestID = c.Writer.Header().Get(requestIDHeader)
	c.JSON(statusCode, body)
}

func fail(c *gin.Context, statusCode int, code, message, details string, data interface{}) {
	write(c, statusCode, Response{
		Message: message,
		Data:    data,
		Error:   &ErrorDetail{Code: code, Message: message, Details: details},
	})
}

func Success(c *gin.Context, statusCode int, message string, data interface{}) {
	write(c, statusCode, Response{Success: true, Message: message, Data: data})
}

func Error(c *gin.Context, statusCode int, code, message, details string) {
	fail(c, statusCode, code, message, details, nil)
}

func BadRequest(c *gin.Context, message, details string) {
	fail(c, http.StatusBadRequest, "BAD_REQUEST", message, details, nil)
}

func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, "FORBIDDEN", message, "", nil)
}

func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, "NOT_FOUND", message, "", nil)
}

// Conflict reports a state conflict such as a duplicate bill or a locked
// record. data carries the conflicting record's identity when there is one.
func Conflict(c *gin.Context, code, message, details string, data interface{}) {
	fail(c, http.StatusConflict, code, message, details, data)
}

// UnprocessableEntity is for well-formed requests the domain refuses
func UnprocessableEntity(c *gin.Context, code, message, details string) {
	fail(c, http.StatusUnprocessableEntity, code, message, details, nil)
}

func ValidationError(c *gin.Context, details string) {
	UnprocessableEntity(c, "VALIDATION_ERROR", "Validation failed", details)
}

func InternalError(c *gin.Context, message, details string) {
	fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, details, nil)
}
