package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func runDetector(t *testing.T, userAgent, acceptLanguage string) bool {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var suspected bool
	router := gin.New()
	router.Use(NewBotDetector(nil).Detect())
	router.GET("/probe", func(c *gin.Context) {
		suspected = IsSuspectedBot(c)
		c.Status(200)
	})

	req := httptest.NewRequest("GET", "/probe", nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if acceptLanguage != "" {
		req.Header.Set("Accept-Language", acceptLanguage)
	}
	router.ServeHTTP(httptest.NewRecorder(), req)

	return suspected
}

func TestBotDetector(t *testing.T) {
	t.Run("正常浏览器请求不被标记", func(t *testing.T) {
		ua := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
		assert.False(t, runDetector(t, ua, "en-US,en;q=0.9"))
	})

	t.Run("缺失UA被标记", func(t *testing.T) {
		assert.True(t, runDetector(t, "", "en-US"))
	})

	t.Run("爬虫UA被标记", func(t *testing.T) {
		for _, ua := range []string{
			"curl/8.4.0",
			"python-requests/2.31",
			"Googlebot/2.1 (+http://www.google.com/bot.html)",
			"Scrapy/2.11 (+https://scrapy.org)",
		} {
			assert.True(t, runDetector(t, ua, "en-US"), ua)
		}
	})

	t.Run("缺失Accept-Language被标记", func(t *testing.T) {
		ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
		assert.True(t, runDetector(t, ua, ""))
	})
}
