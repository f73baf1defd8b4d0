// Package status categorizes provider HTTP failures for the retry layer.
package status

import (
	"net/http"
	"strconv"
	"time"

	ai "github.com/spetersoncode/tandem"
)

// Category maps an HTTP status code to an error category.
func Category(code int) ai.ErrorCategory {
	switch {
	case code == http.StatusTooManyRequests, code == 529:
		return ai.ErrorTransient
	case code >= 500 && code < 600:
		return ai.ErrorTransient
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ai.ErrorPermanent
	case code == http.StatusBadRequest, code == http.StatusNotFound, code == http.StatusUnprocessableEntity, code == http.StatusRequestEntityTooLarge:
		return ai.ErrorUserInput
	default:
		return ai.ErrorPermanent
	}
}

// RetryAfter reads the Retry-After header, in seconds or as an HTTP date.
func RetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Wrap builds a categorized error for a failed request with the given
// status. resp may be nil.
func Wrap(provider ai.Provider, code int, resp *http.Response, cause error) error {
	msg := provider.String() + " request failed"
	switch Category(code) {
	case ai.ErrorTransient:
		return ai.NewTransientError(msg, code, RetryAfter(resp), cause)
	case ai.ErrorUserInput:
		return ai.NewUserInputError(msg, code, cause)
	default:
		return ai.NewPermanentError(msg, code, cause)
	}
}
