package bridge

import (
	"errors"
	"fmt"
)

// Code classifies a caller-visible failure.
type Code int

const (
	RemoteUnavailable Code = iota + 1
	InvalidRequest
	MissingParameter
	InvalidStateValue
	AlreadyEnabled
	AlreadyDisabled
	NotPermitted
	InvalidProfile
	NetworkNotFound
	UnsupportedSecurity
	RemoteError
	Timeout
	Superseded
)

var codeNames = map[Code]string{
	RemoteUnavailable:   "RemoteUnavailable",
	InvalidRequest:      "InvalidRequest",
	MissingParameter:    "MissingParameter",
	InvalidStateValue:   "InvalidStateValue",
	AlreadyEnabled:      "AlreadyEnabled",
	AlreadyDisabled:     "AlreadyDisabled",
	NotPermitted:        "NotPermitted",
	InvalidProfile:      "InvalidProfile",
	NetworkNotFound:     "NetworkNotFound",
	UnsupportedSecurity: "UnsupportedSecurity",
	RemoteError:         "RemoteError",
	Timeout:             "Timeout",
	Superseded:          "Superseded",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is a failure reported back to a local caller.
type Error struct {
	Code Code
	Text string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Text)
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Text: fmt.Sprintf(format, args...)}
}

// ErrorCode returns the Code of err, or RemoteError for foreign errors.
func ErrorCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RemoteError
}

var (
	errUnavailable = newError(RemoteUnavailable, "network service is not available")
	errStopped     = newError(RemoteUnavailable, "wifi service is not running")
)
