package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-client/internal/observability"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// callerFromRequest identifies the UI shell instance behind a local API call,
// for audit text.
func callerFromRequest(c *gin.Context) string {
	caller := observability.IPFromRequest(c.Request)
	if device := observability.DeviceIDFromRequest(c.Request); device != "" {
		caller += " device=" + device
	}
	return caller
}
