package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrTimeout is wrapped by every error caused by a request exceeding its ceiling
var ErrTimeout = errors.New("request timed out")

// APIError is a non-2xx response decoded from the service error envelope
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("orders api: status %d", e.Status)
	}
	return fmt.Sprintf("orders api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsConflict reports whether the server rejected a transition as illegal
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// IsNotFound reports whether the order no longer exists or is no longer visible
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
