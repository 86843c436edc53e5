package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/parkvoucher/internal/auth/domain"
	reportdomain "github.com/smallbiznis/parkvoucher/internal/report/domain"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		var limited *authdomain.RateLimitedError
		if errors.As(lastErr.Err, &limited) && limited.RetryAfter > 0 {
			seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "请求参数无效")
}

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: "服务器内部错误",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		message := "validation error"
		if len(vErr.Errors) > 0 {
			message = vErr.Errors[0].Message
		}
		return http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: message,
			Errors:  vErr.Errors,
		}
	}

	var rejected *voucherdomain.UsageRejectedError
	if errors.As(err, &rejected) {
		return http.StatusConflict, errorResponse{
			Error:   "usage_rejected",
			Message: rejected.Message(),
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		voucherdomain.IsValidation(err),
		errors.Is(err, reportdomain.ErrInvalidDate):
		return http.StatusBadRequest, errorResponse{
			Error:   "validation_error",
			Message: validationMessage(err),
		}
	case errors.Is(err, authdomain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{
			Error:   "unauthorized",
			Message: "用户名或密码错误",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionExpired):
		return http.StatusUnauthorized, errorResponse{
			Error:   "unauthorized",
			Message: "请先登录",
		}
	case errors.Is(err, authdomain.ErrInvalidWebhookKey):
		return http.StatusUnauthorized, errorResponse{
			Error:   "invalid_webhook_key",
			Message: "无效的接口密钥",
		}
	case errors.Is(err, authdomain.ErrCSRFMismatch):
		return http.StatusForbidden, errorResponse{
			Error:   "csrf_mismatch",
			Message: "CSRF 校验失败",
		}
	case errors.Is(err, authdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{
			Error:   "rate_limited",
			Message: "登录尝试过于频繁，请稍后再试",
		}
	case errors.Is(err, voucherdomain.ErrUsageRejected):
		return http.StatusConflict, errorResponse{
			Error:   "usage_rejected",
			Message: "停车券不可用",
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, voucherdomain.ErrNotFound),
		errors.Is(err, authdomain.ErrWebhookDisabled):
		return http.StatusNotFound, errorResponse{
			Error:   "not_found",
			Message: "资源不存在",
		}
	default:
		return http.StatusInternalServerError, errorResponse{
			Error:   "internal_error",
			Message: "服务器内部错误",
		}
	}
}

func validationMessage(err error) string {
	switch {
	case errors.Is(err, voucherdomain.ErrInvalidTotal):
		return "购买次数必须为正整数"
	case errors.Is(err, voucherdomain.ErrInvalidRemain):
		return "剩余次数必须在 0 与购买次数之间"
	case errors.Is(err, voucherdomain.ErrInvalidSource):
		return "无效的使用来源"
	case errors.Is(err, voucherdomain.ErrInvalidQRImage):
		return "二维码图片无效"
	case errors.Is(err, reportdomain.ErrInvalidDate):
		return "日期格式无效"
	default:
		return "请求参数无效"
	}
}

// classifyErrorForLog feeds the request logger. Only internal_error is logged
// with the error attached.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	return payload.Error, strconv.Itoa(status)
}
