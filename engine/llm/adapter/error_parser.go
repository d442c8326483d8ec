package llmadapter

import (
	"net/http"
	"strconv"
	"strings"
)

// ErrorParser extracts classified errors from the free-text failures
// provider SDKs return. Classification feeds the Generation Client's
// backoff policy, so unknown shapes fall through to generic wrapping
// rather than guessing.
type ErrorParser struct {
	provider string
}

// NewErrorParser creates a parser for the given provider.
func NewErrorParser(provider string) *ErrorParser {
	return &ErrorParser{provider: provider}
}

// ParseError classifies err, returning nil when no pattern matches.
func (p *ErrorParser) ParseError(err error) *Error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	if status := extractHTTPStatusCode(lower); status > 0 {
		return NewError(status, msg, p.provider, err)
	}
	if parsed := p.matchProviderPatterns(lower, msg, err); parsed != nil {
		return parsed
	}
	if parsed := p.matchNetworkPatterns(lower, msg, err); parsed != nil {
		return parsed
	}
	return nil
}

// extractHTTPStatusCode scans messages like "status code: 429" or
// "HTTP 503" for an embedded status.
func extractHTTPStatusCode(msg string) int {
	prefixes := []string{"status code: ", "status code ", "http ", "error ", "code "}
	for _, prefix := range prefixes {
		idx := strings.Index(msg, prefix)
		if idx < 0 {
			continue
		}
		start := idx + len(prefix)
		end := start
		for end < len(msg) && end < start+3 && msg[end] >= '0' && msg[end] <= '9' {
			end++
		}
		if end-start != 3 {
			continue
		}
		if code, err := strconv.Atoi(msg[start:end]); err == nil && code >= 100 && code < 600 {
			return code
		}
	}
	return 0
}

func (p *ErrorParser) matchProviderPatterns(lower, msg string, err error) *Error {
	rateLimit := []string{
		"rate limit", "rate-limit", "ratelimit", "too many requests",
		"throttled", "throttling", "requests per minute",
	}
	for _, pattern := range rateLimit {
		if strings.Contains(lower, pattern) {
			return NewError(http.StatusTooManyRequests, msg, p.provider, err)
		}
	}
	if strings.Contains(lower, "insufficient_quota") || strings.Contains(lower, "quota exceeded") {
		return NewErrorWithCode(ErrCodeQuotaExceeded, msg, p.provider, err)
	}
	unavailable := []string{
		"service unavailable", "temporarily unavailable", "overloaded",
		"capacity", "try again later",
	}
	for _, pattern := range unavailable {
		if strings.Contains(lower, pattern) {
			return NewError(http.StatusServiceUnavailable, msg, p.provider, err)
		}
	}
	auth := []string{"unauthorized", "invalid api key", "invalid_api_key", "authentication"}
	for _, pattern := range auth {
		if strings.Contains(lower, pattern) {
			return NewError(http.StatusUnauthorized, msg, p.provider, err)
		}
	}
	if strings.Contains(lower, "invalid model") || strings.Contains(lower, "model not found") {
		return NewErrorWithCode(ErrCodeInvalidModel, msg, p.provider, err)
	}
	if strings.Contains(lower, "content policy") || strings.Contains(lower, "content_policy") {
		return NewErrorWithCode(ErrCodeContentPolicy, msg, p.provider, err)
	}
	return nil
}

func (p *ErrorParser) matchNetworkPatterns(lower, msg string, err error) *Error {
	timeouts := []string{"timeout", "timed out", "deadline exceeded"}
	for _, pattern := range timeouts {
		if strings.Contains(lower, pattern) {
			return NewErrorWithCode(ErrCodeTimeout, msg, p.provider, err)
		}
	}
	connection := []string{"connection reset", "connection refused", "connection failed", "no such host"}
	for _, pattern := range connection {
		if strings.Contains(lower, pattern) {
			if strings.Contains(lower, "reset") {
				return NewErrorWithCode(ErrCodeConnectionReset, msg, p.provider, err)
			}
			return NewErrorWithCode(ErrCodeConnectionRefused, msg, p.provider, err)
		}
	}
	return nil
}
