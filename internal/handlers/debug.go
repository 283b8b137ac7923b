package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-client/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, sessions SessionProvider, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test from "+callerFromRequest(c), "", "", requestIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/conversations/:conversation_id/pending", func(c *gin.Context) {
		s, err := sessions.Get(c.Request.Context(), c.Param("conversation_id"))
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "could not open conversation"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pending_events": s.PendingEvents()})
	})
}
