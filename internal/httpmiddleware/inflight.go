package httpmiddleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"checkin/internal/scan"
)

// InflightGate rejects a request while a previous one on the same gate
// is still being resolved. Scanner hardware re-emits the same code for
// every frame it stays in view, so the scan route must drop repeats
// until the first attempt has an outcome, then re-arm.
func InflightGate(gate *scan.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !gate.TryAcquire() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "scan in progress"})
			return
		}
		defer gate.Release()
		c.Next()
	}
}
