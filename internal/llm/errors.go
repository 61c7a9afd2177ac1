package llm

import (
	"errors"
	"fmt"
)

// statusOverloaded is Anthropic's "overloaded" status, also used for
// overload errors reported inside an open stream.
const statusOverloaded = 529

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// APIError is a request the provider rejected; retrying will not help.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("claude error %s (status %d): %s", e.Type, e.StatusCode, truncate(e.Message, 200))
	}
	return fmt.Sprintf("claude api status %d: %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// UserMessage converts a generation error into text safe to show users.
func UserMessage(err error) string {
	var apiErr *APIError
	var retryErr *RetryableError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &retryErr):
		if retryErr.StatusCode == 429 {
			return "The AI service is rate limiting requests. Please try again shortly."
		}
		return "The AI service is temporarily unavailable. Please try again."
	case errors.As(err, &apiErr):
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return "Error during generation"
	default:
		return "Error during generation"
	}
}
