// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-rag-api/pkg/errors"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Detail string           `json:"detail"`
	Code   errors.ErrorCode `json:"code"`
}

// Error 返回错误响应，错误同时挂到 gin 上下文供请求日志使用
func Error(c *gin.Context, status int, code errors.ErrorCode, detail string) {
	_ = c.Error(errors.New(code, detail))
	c.JSON(status, ErrorResponse{Detail: detail, Code: code})
}

// BadRequest 返回 400 错误
func BadRequest(c *gin.Context, detail string) {
	Error(c, http.StatusBadRequest, errors.CodeInvalidParam, detail)
}

// NotFound 返回 404 错误
func NotFound(c *gin.Context, code errors.ErrorCode, detail string) {
	Error(c, http.StatusNotFound, code, detail)
}

// AppError 按应用错误的状态码返回，detail 为面向用户的原因
func AppError(c *gin.Context, err error) {
	appErr := errors.AsAppError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	_ = c.Error(err)
	c.JSON(status, ErrorResponse{Detail: appErr.Cause(), Code: appErr.Code})
}

// InternalError 返回 500 错误
func InternalError(c *gin.Context, code errors.ErrorCode, detail string) {
	Error(c, http.StatusInternalServerError, code, detail)
}
