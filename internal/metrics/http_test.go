package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsRouter(t *testing.T) (*Provider, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider, err := NewProvider("fieldcrypt")
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	})

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(provider.MeterProvider(), "fieldcrypt"))
	return provider, router
}

func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	t.Run("records requests by status", func(t *testing.T) {
		provider, router := metricsRouter(t)
		router.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		router.GET("/broken", func(c *gin.Context) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
		})

		for range 3 {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		body := scrape(t, provider)
		assert.Contains(t, body, "fieldcrypt_http_requests_total")
		assert.Contains(t, body, `status_code="200"`)
		assert.Contains(t, body, `status_code="500"`)
	})

	t.Run("labels use the route pattern not the raw path", func(t *testing.T) {
		provider, router := metricsRouter(t)
		router.GET("/v1/tiers/:tier/rotation", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"tier": c.Param("tier")})
		})

		for _, tier := range []string{"critical", "sensitive"} {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/tiers/"+tier+"/rotation", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}

		body := scrape(t, provider)
		assert.Contains(t, body, `path="/v1/tiers/:tier/rotation"`)
		assert.NotContains(t, body, `path="/v1/tiers/critical/rotation"`)
	})

	t.Run("unmatched routes collapse to unknown", func(t *testing.T) {
		provider, router := metricsRouter(t)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)

		body := scrape(t, provider)
		assert.Contains(t, body, `path="unknown"`)
		assert.False(t, strings.Contains(body, `path="/no/such/route"`))
	})
}
