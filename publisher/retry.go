package publisher

import (
	"fmt"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// RetryConfig bounds retries of CMS requests.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig allows three attempts with exponential backoff from one second.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   8 * time.Second,
	}
}

// StatusError is a non-2xx admin API response.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Message)
}

// Transient reports whether the status is worth retrying: server and gateway errors, rate limits.
func (e *StatusError) Transient() bool {
	return retryableStatus(e.Code)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// ShouldRetry reports whether an attempt failed transiently. Transport
// errors always qualify; status errors only when Transient.
func ShouldRetry(_ *http.Response, err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*StatusError); ok {
		return se.Transient()
	}
	return true
}

// NewExecutor builds the failsafe executor used for every admin request.
//
//nolint:bodyclose // *http.Response is a type parameter here
func NewExecutor(cfg RetryConfig) failsafe.Executor[*http.Response] {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	policy := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(ShouldRetry).
		ReturnLastFailure().
		Build()
	return failsafe.With(policy)
}
