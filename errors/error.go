package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is a coded error. Two *Error values match under errors.Is when their
// codes are equal, so a sentinel and a more specific error built from the same
// code compare as the same kind.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
	Details any    `json:"details,omitempty"`
}

func New(code int64, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func Newf(code int64, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code int64, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithDetails returns a copy of e carrying details. The receiver is left
// untouched so package-level sentinels stay immutable.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) GetCode() int64 {
	return e.Code
}

func (e *Error) GetMessage() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) GetDetails() any {
	return e.Details
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (int64, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
