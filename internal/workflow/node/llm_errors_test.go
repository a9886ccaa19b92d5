package node

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "z-song-ai-api/pkg/errors"
)

func TestClassifyLLMError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want LLMErrorClass
	}{
		{"nil", nil, ""},
		{"rate limited status", errors.New("error, status code: 429, status: 429 Too Many Requests"), LLMErrorTransient},
		{"server error status", errors.New("error, status code: 503, message: overloaded"), LLMErrorTransient},
		{"unauthorized status", errors.New("error, status code: 401, message: Incorrect API key provided"), LLMErrorAuth},
		{"content filter", errors.New("error, status code: 400, message: content_filter triggered"), LLMErrorContentBlocked},
		{"policy violation", errors.New("error, status code: 400, message: Your request was rejected as a result of our safety system. code: content_policy_violation"), LLMErrorContentBlocked},
		{"gemini block reason", errors.New("response blocked: blockReason: SAFETY"), LLMErrorContentBlocked},
		{"bad request", errors.New("error, status code: 400, message: invalid model"), LLMErrorPermanent},
		{"rejected safety_settings argument", errors.New("error, status code: 400, status: 400 Bad Request, message: Unrecognized request argument supplied: safety_settings"), LLMErrorPermanent},
		{"unknown thinking parameter", errors.New("error, status code: 400, message: Unknown parameter: 'thinking'."), LLMErrorPermanent},
		{"safety word without policy signature", errors.New("error, status code: 400, message: invalid value for safety threshold"), LLMErrorPermanent},
		{"network reset", errors.New("read tcp: connection reset by peer"), LLMErrorTransient},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), LLMErrorTransient},
		{"cancelled", context.Canceled, LLMErrorPermanent},
		{"app transient", apperrors.New(apperrors.CodeLLMTransient, "x"), LLMErrorTransient},
		{"parse failed", apperrors.ErrParseFailed, LLMErrorPermanent},
		{"breaker open", apperrors.ErrBreakerOpen.WithDetail("tier-3"), LLMErrorPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyLLMError(tt.err))
		})
	}
}

func TestWrapLLMError(t *testing.T) {
	raw := errors.New("status code: 429")
	wrapped := WrapLLMError(raw)
	assert.ErrorIs(t, wrapped, raw)
	assert.Equal(t, apperrors.CodeLLMTransient, apperrors.AsAppError(wrapped).Code)
	assert.Contains(t, apperrors.UserMessage(wrapped), "try again shortly")

	auth := WrapLLMError(errors.New("invalid api key"))
	assert.Contains(t, apperrors.UserMessage(auth), "check your credentials")

	blocked := WrapLLMError(errors.New("finish_reason content_filter"))
	assert.Equal(t, apperrors.CodeContentBlocked, apperrors.AsAppError(blocked).Code)

	param := WrapLLMError(errors.New("Unrecognized request argument supplied: safety_settings"))
	assert.Equal(t, apperrors.CodeLLMProviderError, apperrors.AsAppError(param).Code)
	assert.NotContains(t, apperrors.UserMessage(param), "content policy")

	already := apperrors.ErrParseFailed
	assert.Same(t, already, WrapLLMError(already))
	assert.Nil(t, WrapLLMError(nil))
}

func TestIsBlockedFinishReason(t *testing.T) {
	assert.True(t, IsBlockedFinishReason("content_filter"))
	assert.True(t, IsBlockedFinishReason("SAFETY"))
	assert.False(t, IsBlockedFinishReason("stop"))
	assert.False(t, IsBlockedFinishReason(""))
}

func TestIsResponseFormatUnsupportedError(t *testing.T) {
	assert.True(t, IsResponseFormatUnsupportedError(errors.New("Unknown parameter: 'response_format'")))
	assert.False(t, IsResponseFormatUnsupportedError(errors.New("status code: 429")))
	assert.False(t, IsResponseFormatUnsupportedError(nil))
}
