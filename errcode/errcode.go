package errcode

import "errors"

// Code is a stable error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }
func (c Code) Code() Code    { return c }

// Canonical codes (short, stable).
const (
	OK                  Code = "ok"
	DeviceUnavailable   Code = "device_unavailable"
	ModeCallbackFailure Code = "mode_callback_failure"
	InvalidTransition   Code = "invalid_transition"
	SwitchPending       Code = "switch_pending"
	UnknownMode         Code = "unknown_mode"
	InvalidConfig       Code = "invalid_config"
	Timeout             Code = "timeout"

	Error Code = "error" // generic fallback
)

// E keeps an operation, a message and a cause next to the code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.DeviceUnavailable) match a wrapped E.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap builds an *E; a nil err still yields an error carrying c.
func Wrap(c Code, op string, err error) error {
	return &E{C: c, Op: op, Err: err}
}

// New builds an *E with a message and no cause.
func New(c Code, op, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error chain or tree, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var x interface{ Code() Code }
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// IsDeviceUnavailable is shorthand for Of(err) == DeviceUnavailable.
func IsDeviceUnavailable(err error) bool {
	return Of(err) == DeviceUnavailable
}
