package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/harvester/internal/retry"
)

// ErrorClass decides how a failed delivery attempt is handled.
type ErrorClass string

const (
	// ClassRetryable failures are retried with backoff.
	ClassRetryable ErrorClass = "retryable"
	// ClassPermanent failures end the delivery immediately.
	ClassPermanent ErrorClass = "permanent"
	// ClassSessionInvalidated failures discard the transport, then retry.
	ClassSessionInvalidated ErrorClass = "session_invalidated"
)

var (
	// ErrNotConfigured is returned when a destination family has no credentials.
	ErrNotConfigured = errors.New("notifier not configured")
	// ErrUnknownFamily is returned for a destination family with no transport.
	ErrUnknownFamily = errors.New("unknown destination family")
)

// DeliveryError is a classified failure of one delivery attempt.
type DeliveryError struct {
	Class      ErrorClass
	Family     string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s delivery %s: HTTP %d: %v", e.Family, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s delivery %s: %v", e.Family, e.Class, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// sessionPatterns identify a transport whose connections can no longer be used.
var sessionPatterns = []string{
	"use of closed network connection",
	"client is closed",
	"server closed idle connection",
	"event loop is closed",
}

// transientPatterns extend retry.DefaultIsRetryable for delivery transports.
var transientPatterns = []string{
	"pool timeout",
	"connection",
	"broken pipe",
}

// Classify maps a delivery failure to its ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassPermanent
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Class
	}

	switch {
	case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrUnknownFamily), errors.Is(err, context.Canceled):
		return ClassPermanent
	case errors.Is(err, net.ErrClosed), errors.Is(err, redis.ErrClosed):
		return ClassSessionInvalidated
	case errors.Is(err, context.DeadlineExceeded):
		return ClassRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassRetryable
	}

	msg := strings.ToLower(err.Error())
	for _, p := range sessionPatterns {
		if strings.Contains(msg, p) {
			return ClassSessionInvalidated
		}
	}

	if retry.DefaultIsRetryable(err) {
		return ClassRetryable
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ClassRetryable
		}
	}

	return ClassPermanent
}
