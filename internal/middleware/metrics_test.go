package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/lms-api/internal/service"
)

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/personal-assignments/:id/comments/", routeLabel("/api/v1/personal-assignments/:id/comments/", "/api/v1"))
	assert.Equal(t, "/health", routeLabel("/health", "/api/v1"))
	assert.Equal(t, "/api/v1x/other", routeLabel("/api/v1x/other", "/api/v1"))
	assert.Equal(t, unmatchedRoute, routeLabel("", "/api/v1"))
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/api/v1/"))
	r.POST("/api/v1/personal-assignments/:id/comments/", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, target := range []string{"/api/v1/personal-assignments/pa1/comments/", "/api/v1/personal-assignments/pa2/comments/"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, target, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))

	w := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	assert.Contains(t, body, `http_requests_total{method="POST",path="/personal-assignments/:id/comments/",status="201"} 2`)
	assert.Contains(t, body, `path="unmatched",status="404"`)
	assert.NotContains(t, body, "pa1")
	assert.NotContains(t, body, `path="/health"`)
	assert.NotContains(t, body, "wp-login")
}
