// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"
	CodeTimeout            ErrorCode = "1009"

	// 生成业务错误 (4xxx)
	CodeGenerationFailed ErrorCode = "4001"
	CodeValidationFailed ErrorCode = "4002"
	CodeResearchFailed   ErrorCode = "4003"
	CodeParseFailed      ErrorCode = "4004"
	CodeLLMCallFailed    ErrorCode = "4005"
	CodeCascadeExhausted ErrorCode = "4006"
	CodeCritiqueFailed   ErrorCode = "4007"

	// 外部服务错误 (5xxx)
	CodeDatabaseError    ErrorCode = "5001"
	CodeCacheError       ErrorCode = "5002"
	CodeLLMProviderError ErrorCode = "5005"
	CodeLLMTransient     ErrorCode = "5006"
	CodeLLMAuth          ErrorCode = "5007"
	CodeContentBlocked   ErrorCode = "5008"
	CodeBreakerOpen      ErrorCode = "5009"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，便于 errors.Is(err, ErrBreakerOpen) 之类的判断
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail 添加详细信息（返回副本，不修改共享的预定义错误）
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 添加底层错误（返回副本）
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeContentBlocked:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeServiceUnavailable, CodeLLMTransient, CodeBreakerOpen, CodeCascadeExhausted:
		return http.StatusServiceUnavailable
	case CodeLLMAuth:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam     = New(CodeInvalidParam, "invalid parameter")
	ErrParseFailed      = New(CodeParseFailed, "no artifact field could be recovered from model output")
	ErrBreakerOpen      = New(CodeBreakerOpen, "circuit breaker open")
	ErrCascadeExhausted = New(CodeCascadeExhausted, "all generation tiers failed")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// UserMessage 返回面向终端用户的提示语
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return "Something went wrong. Please try again shortly."
	}
	// 优先使用链上更具体的错误码
	code := appErr.Code
	var inner *AppError
	if appErr.Err != nil && stderrors.As(appErr.Err, &inner) {
		code = inner.Code
	}
	switch code {
	case CodeLLMAuth, CodeUnauthorized:
		return "The generation backend rejected our credentials. Please check your credentials."
	case CodeContentBlocked:
		return "The request was blocked by the content policy. Please rephrase your prompt."
	case CodeInvalidParam:
		return "The request is invalid. Please check your input."
	case CodeTooManyRequests:
		return "Too many requests. Please try again shortly."
	default:
		return "The generation backend is busy or unavailable. Please try again shortly."
	}
}
