package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"recon-dashboard/pkg/logger"
	"recon-dashboard/pkg/response"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.GetLogger().WithFields(map[string]interface{}{
					"error":      err,
					"request_id": GetRequestID(c),
					"path":       c.Request.URL.Path,
				}).Error("Panic recovered")
				response.InternalError(c, "Internal server error", "An unexpected error occurred")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// ErrorHandler answers requests whose handlers attached an error without
// writing a response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			logger.GetLogger().WithError(err.Err).WithField("request_id", GetRequestID(c)).Error("Request error")

			if !c.Writer.Written() {
				response.InternalError(c, "Request failed", err.Error())
			}
		}
	}
}

// NoRoute answers unknown paths in the API's response shape
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Route not found", c.Request.URL.Path)
	}
}
