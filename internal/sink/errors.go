package sink

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// RejectedError reports that the sink refused a batch. Rejections are
// permanent: retrying the same payload would fail the same way.
type RejectedError struct {
	Table  string
	Status int
	Detail string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("sink rejected batch for %s (status %d): %s", e.Table, e.Status, e.Detail)
}

// UnavailableError reports that the sink could not be reached, or kept
// answering with transient failures until retries ran out.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("sink unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// AuthError reports that the sink rejected our credentials and a fresh
// authentication attempt did not help.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("sink authentication failed (status %d)", e.Status)
}

// IsRejected reports whether err is a permanent batch rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// IsUnavailable reports whether err is a transient sink failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// IsAuthFailed reports whether err is a terminal authentication failure.
func IsAuthFailed(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Classify sorts a database error into the taxonomy: connectivity and
// timeout failures are transient, everything else (constraint violations,
// bad identifiers, type mismatches) is a judgement on the payload.
func Classify(table string, err error) error {
	if err == nil {
		return nil
	}

	var ne net.Error
	switch {
	case errors.As(err, &ne),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return &UnavailableError{Err: err}
	}
	return &RejectedError{Table: table, Detail: err.Error()}
}
