package llmadapter

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorParser_ParseError(t *testing.T) {
	parser := NewErrorParser("openai")

	t.Run("Should classify embedded HTTP status codes", func(t *testing.T) {
		cases := []struct {
			message string
			code    ErrorCode
			status  int
		}{
			{"request failed with status code: 429", ErrCodeRateLimit, 429},
			{"request failed with status code: 401", ErrCodeUnauthorized, 401},
			{"request failed with status code: 503", ErrCodeServiceUnavailable, 503},
			{"upstream said HTTP 502 bad gateway", ErrCodeBadGateway, 502},
			{"request failed with status code: 500", ErrCodeInternalServer, 500},
		}
		for _, tc := range cases {
			parsed := parser.ParseError(errors.New(tc.message))
			require.NotNil(t, parsed, tc.message)
			assert.Equal(t, tc.code, parsed.Code, tc.message)
			assert.Equal(t, tc.status, parsed.HTTPStatus, tc.message)
		}
	})

	t.Run("Should classify provider phrases without status codes", func(t *testing.T) {
		cases := []struct {
			message string
			code    ErrorCode
		}{
			{"Rate limit reached for gpt-4o-mini", ErrCodeRateLimit},
			{"You exceeded your current quota, insufficient_quota", ErrCodeQuotaExceeded},
			{"The server is temporarily unavailable", ErrCodeServiceUnavailable},
			{"Incorrect API key provided: invalid api key", ErrCodeUnauthorized},
			{"The model `gpt-9` does not exist: invalid model", ErrCodeInvalidModel},
			{"Your request was rejected by the content policy", ErrCodeContentPolicy},
		}
		for _, tc := range cases {
			parsed := parser.ParseError(errors.New(tc.message))
			require.NotNil(t, parsed, tc.message)
			assert.Equal(t, tc.code, parsed.Code, tc.message)
		}
	})

	t.Run("Should classify network failures", func(t *testing.T) {
		cases := []struct {
			message string
			code    ErrorCode
		}{
			{"context deadline exceeded", ErrCodeTimeout},
			{"dial tcp: i/o timeout", ErrCodeTimeout},
			{"read tcp: connection reset by peer", ErrCodeConnectionReset},
			{"dial tcp 127.0.0.1:11434: connection refused", ErrCodeConnectionRefused},
		}
		for _, tc := range cases {
			parsed := parser.ParseError(errors.New(tc.message))
			require.NotNil(t, parsed, tc.message)
			assert.Equal(t, tc.code, parsed.Code, tc.message)
		}
	})

	t.Run("Should return nil for unrecognized errors", func(t *testing.T) {
		assert.Nil(t, parser.ParseError(errors.New("everything is on fire")))
		assert.Nil(t, parser.ParseError(nil))
	})

	t.Run("Should keep the provider name on parsed errors", func(t *testing.T) {
		parsed := parser.ParseError(errors.New("rate limit reached"))
		require.NotNil(t, parsed)
		assert.Equal(t, "openai", parsed.Provider)
	})
}

func TestError_Retryable(t *testing.T) {
	t.Run("Should retry load and transport failures", func(t *testing.T) {
		retryable := []ErrorCode{
			ErrCodeRateLimit, ErrCodeQuotaExceeded, ErrCodeTimeout,
			ErrCodeConnectionReset, ErrCodeConnectionRefused,
			ErrCodeInternalServer, ErrCodeBadGateway,
			ErrCodeServiceUnavailable, ErrCodeGatewayTimeout,
		}
		for _, code := range retryable {
			err := NewErrorWithCode(code, "boom", "openai", nil)
			assert.True(t, err.Retryable(), string(code))
		}
	})

	t.Run("Should not retry auth or validation failures", func(t *testing.T) {
		fatal := []ErrorCode{
			ErrCodeBadRequest, ErrCodeUnauthorized, ErrCodeInvalidModel,
			ErrCodeContentPolicy, ErrCodeEmptyResponse, ErrCodeUnknown,
		}
		for _, code := range fatal {
			err := NewErrorWithCode(code, "boom", "openai", nil)
			assert.False(t, err.Retryable(), string(code))
		}
	})
}

func TestIsLLMError(t *testing.T) {
	t.Run("Should unwrap through fmt wrapping", func(t *testing.T) {
		inner := NewError(http.StatusTooManyRequests, "slow down", "groq", nil)
		wrapped := fmt.Errorf("generation failed: %w", inner)
		llmErr, ok := IsLLMError(wrapped)
		require.True(t, ok)
		assert.Equal(t, ErrCodeRateLimit, llmErr.Code)
	})

	t.Run("Should report false for plain errors", func(t *testing.T) {
		_, ok := IsLLMError(errors.New("plain"))
		assert.False(t, ok)
	})
}
