package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// UserIDHeader carries the caller's user id, set by the gateway in front of the API
const UserIDHeader = "X-User-ID"

func userID(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(UserIDHeader))
}
