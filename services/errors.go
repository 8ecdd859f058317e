package services

import "errors"

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrForbidden         = errors.New("not allowed to act on this order")
	ErrReviewExists      = errors.New("order already has a review")
	ErrOrderNotCompleted = errors.New("order is not completed")
)

// ValidationError reports a malformed request
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
