package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind is the classification of an API failure.
type Kind string

const (
	KindRateLimited     Kind = "rate_limited"
	KindTransientServer Kind = "transient_server"
	KindClient          Kind = "client"
	KindNotFound        Kind = "not_found"
	KindConfiguration   Kind = "configuration"
	// KindUnknown is reported for errors that did not come from this package
	// (network failures, context cancellation, decoding errors).
	KindUnknown Kind = "unknown"
)

// Error is a classified API failure.
type Error struct {
	Kind       Kind
	StatusCode int
	// Op names the call that failed, e.g. "hubspot.create listing".
	Op      string
	Message string
	// RetryAfter is the server-requested delay, zero when absent.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FromResponse classifies a non-2xx response. It returns nil for 2xx codes.
func FromResponse(op string, status int, header http.Header, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	e := &Error{
		Op:         op,
		StatusCode: status,
		Message:    truncate(strings.TrimSpace(string(body)), 512),
	}

	switch {
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(header)
	case status == http.StatusRequestTimeout || status >= 500:
		e.Kind = KindTransientServer
		e.RetryAfter = parseRetryAfter(header)
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	default:
		e.Kind = KindClient
	}
	return e
}

// New builds a classified error without an HTTP response.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Configuration returns a fatal configuration error.
func Configuration(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Op: "config", Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err may succeed when repeated.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransientServer:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsConfiguration reports whether err is a configuration failure.
func IsConfiguration(err error) bool {
	return KindOf(err) == KindConfiguration
}

// IsConflict reports whether err is a duplicate-key rejection: a 409, or a 400
// whose body complains about a unique value that already exists.
func IsConflict(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindClient {
		return false
	}
	if e.StatusCode == http.StatusConflict {
		return true
	}
	if e.StatusCode == http.StatusBadRequest {
		msg := strings.ToLower(e.Message)
		return strings.Contains(msg, "already has that value") ||
			strings.Contains(msg, "already exists") ||
			strings.Contains(msg, "duplicate")
	}
	return false
}

// RetryAfter returns the server-requested delay carried by err, if any.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
