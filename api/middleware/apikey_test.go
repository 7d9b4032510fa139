package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/customeros/mailarchive/internal/utils"
)

func newRouter(validKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(APIKeyConfig{HeaderName: APIKeyHeader, ValidAPIKey: validKey}))
	r.Use(CustomContextMiddleware("mailarchive"))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, utils.GetAppSourceFromContext(c.Request.Context()))
	})
	return r
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		validKey string
		header   string
		want     int
	}{
		{"missing", "secret", "", http.StatusUnauthorized},
		{"wrong", "secret", "other", http.StatusUnauthorized},
		{"unconfigured", "", "anything", http.StatusUnauthorized},
		{"valid", "secret", "secret", http.StatusOK},
		{"valid with spaces", "secret", "  secret ", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			w := httptest.NewRecorder()
			newRouter(tt.validKey).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), `"kind":"invalid"`)
			} else {
				assert.Equal(t, "mailarchive", w.Body.String())
			}
		})
	}
}
