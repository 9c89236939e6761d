// Package middleware 提供 HTTP 中间件
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"portfolio-rag-api/pkg/errors"
	"portfolio-rag-api/pkg/logger"
)

// Recovery Panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				perr := fmt.Errorf("%v", err)
				logger.Error(c.Request.Context(), "panic recovered",
					perr,
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				// 交给请求日志记录
				_ = c.Error(perr)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"detail": "Internal server error.",
					"code":   errors.CodeInternalError,
				})
			}
		}()

		c.Next()
	}
}
