package meeting

import "fmt"

type ErrorReason string

const (
	REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL ErrorReason = "FAILED_TO_TRANSLATE_TO_DB_MODEL"
	REASON_FAILED_TO_WRITE                 ErrorReason = "FAILED_TO_WRITE"
	REASON_TIMEOUT                         ErrorReason = "TIMEOUT"
	REASON_FAILED_TO_FETCH                 ErrorReason = "FAILED_TO_FETCH"
	REASON_MEETING_NOT_CONFIGURED          ErrorReason = "MEETING_NOT_CONFIGURED"
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

func newMeetingError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewFailedToWriteError(message string, cause error) *Error {
	return newMeetingError(REASON_FAILED_TO_WRITE, message, cause)
}

func NewFailedToTranslateToDBModelError(message string, cause error) *Error {
	return newMeetingError(REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL, message, cause)
}

func NewFailedToFetchError(message string, cause error) *Error {
	return newMeetingError(REASON_FAILED_TO_FETCH, message, cause)
}

func NewMeetingNotConfiguredError(message string, cause error) *Error {
	return newMeetingError(REASON_MEETING_NOT_CONFIGURED, message, cause)
}

func NewTimeoutError(message string) *Error {
	return newMeetingError(REASON_TIMEOUT, message, nil)
}
