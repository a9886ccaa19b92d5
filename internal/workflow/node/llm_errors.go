package node

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	apperrors "z-song-ai-api/pkg/errors"
)

// LLMErrorClass 后端错误分类
type LLMErrorClass string

const (
	LLMErrorTransient      LLMErrorClass = "transient"
	LLMErrorAuth           LLMErrorClass = "auth"
	LLMErrorContentBlocked LLMErrorClass = "content_blocked"
	LLMErrorPermanent      LLMErrorClass = "permanent"
)

var statusCodePattern = regexp.MustCompile(`status(?: code)?:?\s*(\d{3})`)

var (
	// 仅匹配明确的内容审核签名
	contentBlockedMarkers = []string{
		"content_filter", "content filter",
		"content_policy_violation", "content policy violation",
		"content management policy", "prohibited_content",
		"blocked due to safety", "blockreason: safety", "block_reason: safety",
	}
	// 请求参数被后端拒绝，与内容无关
	rejectedParamMarkers = []string{
		"unrecognized request argument", "unknown parameter", "unknown field",
		"unsupported parameter", "extra inputs are not permitted",
	}
	// 因审核而提前结束的 finish reason
	blockedFinishReasons = map[string]struct{}{
		"content_filter": {}, "safety": {}, "prohibited_content": {},
	}
	authMarkers = []string{
		"unauthorized", "invalid api key", "invalid_api_key", "incorrect api key",
		"authentication", "permission denied", "permission_denied", "forbidden",
	}
	transientMarkers = []string{
		"rate limit", "rate_limit", "too many requests", "resource_exhausted",
		"unavailable", "overloaded", "timeout", "timed out", "deadline exceeded",
		"connection reset", "connection refused", "broken pipe", "unexpected eof",
		"temporarily", "try again",
	}
)

func IsResponseFormatUnsupportedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "response_format"):
		return true
	case strings.Contains(msg, "json_schema"):
		return true
	case strings.Contains(msg, "unknown parameter") && strings.Contains(msg, "response"):
		return true
	case strings.Contains(msg, "invalid") && strings.Contains(msg, "response"):
		return true
	case strings.Contains(msg, "response_schema"):
		return true
	case strings.Contains(msg, "failed to parse"):
		return true
	default:
		return false
	}
}

// ClassifyLLMError 按错误码、状态码与错误文本对后端错误分类
func ClassifyLLMError(err error) LLMErrorClass {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return LLMErrorPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return LLMErrorTransient
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.CodeLLMTransient, apperrors.CodeTimeout, apperrors.CodeServiceUnavailable:
			return LLMErrorTransient
		case apperrors.CodeLLMAuth, apperrors.CodeUnauthorized:
			return LLMErrorAuth
		case apperrors.CodeContentBlocked:
			return LLMErrorContentBlocked
		case apperrors.CodeParseFailed, apperrors.CodeBreakerOpen, apperrors.CodeInvalidParam:
			return LLMErrorPermanent
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return LLMErrorTransient
	}

	msg := strings.ToLower(err.Error())
	if m := statusCodePattern.FindStringSubmatch(msg); len(m) == 2 {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			switch {
			case code == 401 || code == 403:
				return LLMErrorAuth
			case code == 408 || code == 429 || code >= 500:
				return LLMErrorTransient
			}
		}
	}
	switch {
	case containsAny(msg, rejectedParamMarkers):
		return LLMErrorPermanent
	case containsAny(msg, contentBlockedMarkers):
		return LLMErrorContentBlocked
	case containsAny(msg, authMarkers):
		return LLMErrorAuth
	case containsAny(msg, transientMarkers):
		return LLMErrorTransient
	default:
		return LLMErrorPermanent
	}
}

// IsBlockedFinishReason finish reason 是否表示输出被内容审核截断
func IsBlockedFinishReason(reason string) bool {
	_, ok := blockedFinishReasons[strings.ToLower(strings.TrimSpace(reason))]
	return ok
}

// IsTransientLLMError 是否可重试
func IsTransientLLMError(err error) bool {
	return ClassifyLLMError(err) == LLMErrorTransient
}

// WrapLLMError 将原始后端错误包装为带分类错误码的 AppError；已是 AppError 的原样返回
func WrapLLMError(err error) error {
	if err == nil || apperrors.IsAppError(err) {
		return err
	}
	switch ClassifyLLMError(err) {
	case LLMErrorTransient:
		return apperrors.Wrap(err, apperrors.CodeLLMTransient, "LLM backend temporarily unavailable")
	case LLMErrorAuth:
		return apperrors.Wrap(err, apperrors.CodeLLMAuth, "LLM backend rejected credentials")
	case LLMErrorContentBlocked:
		return apperrors.Wrap(err, apperrors.CodeContentBlocked, "content blocked by LLM backend")
	default:
		return apperrors.Wrap(err, apperrors.CodeLLMProviderError, "LLM backend call failed")
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
