package util

import (
	"errors"
	"exam_proctor_backend/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error", zap.Error(err))
	InternalServerError(c)
}

// StatusFor 业务错误到 HTTP 状态码的映射，未知错误一律 500
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrCandidateNotFound),
		errors.Is(err, ErrVacancyNotFound),
		errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExamConflict), errors.Is(err, ErrAlreadyFinalized):
		return http.StatusConflict
	case errors.Is(err, ErrIncompleteProfile):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrClassificationUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidFrame):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbiddenCandidate):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// HandleError 按错误类型写响应；5xx 记录日志但不向客户端暴露细节
func HandleError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		LogInternalError(c, err)
		return
	}
	if status >= http.StatusInternalServerError {
		logger.Log.Warn("Upstream dependency failed", zap.Int("status", status), zap.Error(err))
	}
	Error(c, status, err.Error())
}
