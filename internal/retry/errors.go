package retry

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"

	ai "github.com/spetersoncode/tandem"
)

// statusCoder matches SDK errors that expose an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// IsTransient reports whether err is worth retrying. Categorized errors
// decide for themselves; anything else is judged by status code and
// network error type.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if cat := ai.CategoryOf(err); cat != "" {
		return cat == ai.ErrorTransient
	}

	var sc statusCoder
	if errors.As(err, &sc) && transientStatus(sc.StatusCode()) {
		return true
	}
	return transientNetwork(err)
}

func transientStatus(code int) bool {
	return code == 429 || (code >= 500 && code < 600)
}

func transientNetwork(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ETIMEDOUT:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset",
		"connection refused",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"bad gateway",
		"gateway timeout",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// delayFor honours a server-provided Retry-After when it exceeds the backoff.
func delayFor(backoff time.Duration, err error) time.Duration {
	if server := ai.RetryAfterOf(err); server > backoff {
		return server
	}
	return backoff
}
