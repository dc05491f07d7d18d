package errclass

import "fmt"

// CkptError is a stable, machine-readable error class.
type CkptError struct {
	Code    string
	Message string
}

func (e *CkptError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CkptError) Is(target error) bool {
	t, ok := target.(*CkptError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new CkptError with the same Code but a specific message.
func (e *CkptError) WithMessage(msg string) *CkptError {
	return &CkptError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new CkptError with a formatted message.
func (e *CkptError) WithMessagef(format string, args ...any) *CkptError {
	return &CkptError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// All stable error classes.
var (
	ErrUsage             = &CkptError{Code: "E_USAGE"}
	ErrIDInvalid         = &CkptError{Code: "E_ID_INVALID"}
	ErrNotInRepository   = &CkptError{Code: "E_NOT_IN_REPOSITORY"}
	ErrBusyState         = &CkptError{Code: "E_BUSY_STATE"}
	ErrAlreadyExists     = &CkptError{Code: "E_ALREADY_EXISTS"}
	ErrNotFound          = &CkptError{Code: "E_NOT_FOUND"}
	ErrCorruptCheckpoint = &CkptError{Code: "E_CORRUPT_CHECKPOINT"}
	ErrUnbornHead        = &CkptError{Code: "E_UNBORN_HEAD"}
	ErrLockConflict      = &CkptError{Code: "E_LOCK_CONFLICT"}
	ErrBackendFailure    = &CkptError{Code: "E_BACKEND_FAILURE"}
)
