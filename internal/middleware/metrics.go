package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route, keeping
// scanners from creating a series per URL.
const unmatchedRoute = "unmatched"

// infraRoutes are scraped or polled by infrastructure and not recorded.
var infraRoutes = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
	"/ready":   {},
}

// Metrics records request count and latency per route template, with
// apiPrefix stripped so "/api/v1/personal-assignments/:id/comments/" is
// reported as "/personal-assignments/:id/comments/".
func Metrics(metricsSvc *service.MetricsService, apiPrefix string) gin.HandlerFunc {
	apiPrefix = strings.TrimRight(apiPrefix, "/")
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := routeLabel(c.FullPath(), apiPrefix)
		if _, skip := infraRoutes[route]; skip {
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

func routeLabel(fullPath, apiPrefix string) string {
	if fullPath == "" {
		return unmatchedRoute
	}
	if apiPrefix != "" && strings.HasPrefix(fullPath, apiPrefix+"/") {
		return strings.TrimPrefix(fullPath, apiPrefix)
	}
	return fullPath
}
