// Package response 统一的 HTTP JSON 响应格式
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/defiwizard/pkg/logger"
)

// CodeOK 成功码
const CodeOK = "OK"

// Body 响应体
type Body struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Success 200 + 数据
func Success(c *gin.Context, data any) {
	SuccessWithStatus(c, http.StatusOK, data)
}

// SuccessWithStatus 自定义状态码的成功响应
func SuccessWithStatus(c *gin.Context, status int, data any) {
	c.JSON(status, Body{
		Code:      CodeOK,
		Message:   "success",
		Data:      data,
		RequestID: logger.RequestID(c.Request.Context()),
	})
}

// ErrorWithStatus 错误响应，code 为稳定的机器可读错误码
func ErrorWithStatus(c *gin.Context, status int, code, message string) {
	ErrorWithData(c, status, code, message, nil)
}

// ErrorWithData 附带数据的错误响应
func ErrorWithData(c *gin.Context, status int, code, message string, data any) {
	c.AbortWithStatusJSON(status, Body{
		Code:      code,
		Message:   message,
		Data:      data,
		RequestID: logger.RequestID(c.Request.Context()),
	})
}
