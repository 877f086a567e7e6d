package remotestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("not authenticated")
	ErrForbidden    = errors.New("session belongs to another user")
	ErrNotFound     = errors.New("session not found")
)

// StoreError reports a backend failure. Status is the HTTP status when one was received.
type StoreError struct {
	Op     string
	Status int
	Err    error
}

func (e *StoreError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s failed (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

func invalidErr(op string, err error) error {
	return &StoreError{Op: op, Status: http.StatusBadRequest, Err: err}
}

// IsTransient reports whether retrying the operation may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StoreError
	if errors.As(err, &se) {
		return se.Status == 0 || se.Status >= 500 || se.Status == 429 || se.Status == 408
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

var errEmptySessionID = errors.New("session id is empty")
