package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"portfolio-rag-api/pkg/errors"
)

// WriteKeyHeader 写接口密钥头
const WriteKeyHeader = "X-API-Key"

// RequireWriteKey 写接口鉴权；未配置密钥时放行
func RequireWriteKey(key string) gin.HandlerFunc {
	expected := strings.TrimSpace(key)
	return func(c *gin.Context) {
		if expected == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader(WriteKeyHeader))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Missing or invalid X-API-Key.",
				"code":   errors.CodeUnauthorized,
			})
			return
		}
		c.Next()
	}
}
