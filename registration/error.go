package registration

import (
	"errors"
	"fmt"
	"time"
)

type ErrorReason string

const (
	REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL ErrorReason = "FAILED_TO_TRANSLATE_TO_DB_MODEL"
	REASON_FAILED_TO_WRITE                 ErrorReason = "FAILED_TO_WRITE"
	REASON_REGISTRATION_DOES_NOT_EXIST     ErrorReason = "REGISTRATION_DOES_NOT_EXIST"
	REASON_REGISTRATION_ALREADY_EXISTS     ErrorReason = "REGISTRATION_ALREADY_EXISTS"
	REASON_TIMEOUT                         ErrorReason = "TIMEOUT"
	REASON_FAILED_TO_FETCH                 ErrorReason = "FAILED_TO_FETCH"
	REASON_INVALID_REGISTRATION            ErrorReason = "INVALID_REGISTRATION"
	REASON_REGISTRATION_IS_CLOSED          ErrorReason = "REGISTRATION_IS_CLOSED"
	REASON_MEETING_UNAVAILABLE             ErrorReason = "MEETING_UNAVAILABLE"
)

type Error struct {
	Reason  ErrorReason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s. Cause: %s", e.Reason, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newRegistrationError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewFailedToWriteError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_WRITE, message, cause)
}

func NewFailedToTranslateToDBModelError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL, message, cause)
}

func NewRegistrationAlreadyExistsError(message string, cause error) *Error {
	return newRegistrationError(REASON_REGISTRATION_ALREADY_EXISTS, message, cause)
}

func NewRegistrationDoesNotExistsError(message string, cause error) *Error {
	return newRegistrationError(REASON_REGISTRATION_DOES_NOT_EXIST, message, cause)
}

func NewFailedToFetchError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_FETCH, message, cause)
}

func NewInvalidRegistrationError(message string) *Error {
	return newRegistrationError(REASON_INVALID_REGISTRATION, message, nil)
}

func NewMissingFieldError(field string) *Error {
	return newRegistrationError(REASON_INVALID_REGISTRATION, fmt.Sprintf("Missing required field: %s", field), nil)
}

// NewInvalidAttendeeError takes the zero-based index of the attendee; the message is one-based.
func NewInvalidAttendeeError(index int) *Error {
	return newRegistrationError(REASON_INVALID_REGISTRATION, fmt.Sprintf("Attendee %d is missing name or age", index+1), nil)
}

func NewRegistrationIsClosedError(deadline time.Time) *Error {
	return newRegistrationError(REASON_REGISTRATION_IS_CLOSED, fmt.Sprintf("Registration deadline has passed. Closed at %s", deadline.Format(time.RFC3339)), nil)
}

func NewMeetingUnavailableError(message string, cause error) *Error {
	return newRegistrationError(REASON_MEETING_UNAVAILABLE, message, cause)
}

// IsReason reports whether err carries a registration error with the given reason.
func IsReason(err error, reason ErrorReason) bool {
	var regErr *Error
	if !errors.As(err, &regErr) {
		return false
	}
	return regErr.Reason == reason
}

func NewTimeoutError(message string) *Error {
	return newRegistrationError(REASON_TIMEOUT, message, nil)
}
