package endpoint

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/scribe/version"
)

var startTime = time.Now()

// Info reports the build and process uptime.
func Info(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": serviceName,
			"build":   version.Get(),
			"version": version.Get().String(),
			"uptime":  time.Since(startTime).Round(time.Second).String(),
		})
	}
}
