package ocr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"
	KindBlocked     ErrorKind = "blocked"
	KindTransport   ErrorKind = "transport"
	KindUnknown     ErrorKind = "unknown"
)

// Error is a model call failure classified once, where it happened.
type Error struct {
	Kind  ErrorKind
	Model string
	Err   error
}

func (e *Error) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Model, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, model string, err error) *Error {
	return &Error{Kind: kind, Model: model, Err: err}
}

// KindOf returns the kind of a classified error, KindUnknown otherwise.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Classify wraps a raw client error into an *Error. Already classified errors
// are returned unchanged.
func Classify(err error, model string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(classifyKind(err), model, err)
}

func classifyKind(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusTooManyRequests:
			return KindRateLimited
		case gerr.Code == http.StatusRequestTimeout || gerr.Code == http.StatusGatewayTimeout:
			return KindTimeout
		case gerr.Code >= 500:
			return KindTransport
		}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindTransport
	}

	// the SDK sometimes only carries the status in the message text
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource exhausted") || strings.Contains(msg, "resourceexhausted"):
		return KindRateLimited
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "blocked") || strings.Contains(msg, "safety"):
		return KindBlocked
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "eof"):
		return KindTransport
	}
	return KindUnknown
}
