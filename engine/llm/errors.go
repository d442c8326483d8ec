package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"

	llmadapter "github.com/roundslab/rounds/engine/llm/adapter"
	"github.com/roundslab/rounds/pkg/logger"
)

// transientRetryPattern catches transient failures that escaped the
// adapter's parser. Compiled once and reused.
var transientRetryPattern = regexp.MustCompile(`(?i)(timeout|temporarily|try again|temporarily unavailable)`)

// ContractError reports a structured output that still failed its contract
// after the identical-request retry. Content is the offending payload; it
// is kept for transcripts and must never be fed back into a prompt.
type ContractError struct {
	Contract string
	Content  string
	Err      error
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("structured output failed contract %s after retry: %v", e.Contract, e.Err)
}

func (e *ContractError) Unwrap() error {
	return e.Err
}

// IsContractError unwraps err to a ContractError, if present.
func IsContractError(err error) (*ContractError, bool) {
	var contractErr *ContractError
	if errors.As(err, &contractErr) {
		return contractErr, true
	}
	return nil, false
}

func isRetryableTransport(ctx context.Context, err error) bool {
	retryable := shouldRetryTransport(err)
	log := logger.FromContext(ctx)
	fields := []any{"error_type", fmt.Sprintf("%T", err), "retryable", retryable}
	if llmErr, ok := llmadapter.IsLLMError(err); ok {
		fields = append(fields,
			"llm_error_code", string(llmErr.Code),
			"http_status", llmErr.HTTPStatus,
			"provider", llmErr.Provider,
		)
	}
	log.Debug("classified generation transport error", fields...)
	return retryable
}

func shouldRetryTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if llmErr, ok := llmadapter.IsLLMError(err); ok {
		return llmErr.Retryable()
	}
	return transientRetryPattern.MatchString(err.Error())
}
