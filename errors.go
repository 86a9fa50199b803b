package autotool

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for autotool. Use errors.Is to check; every *Error matches
// the sentinel of its Kind.
var (
	ErrLoad        = errors.New("root cannot be resolved")
	ErrMemberRead  = errors.New("member metadata unreadable")
	ErrCoercion    = errors.New("argument coercion failed")
	ErrInvocation  = errors.New("invocation failed")
	ErrNotFound    = errors.New("tool not found")
	ErrOverlayLoad = errors.New("overlay load failed")
	ErrTimeout     = errors.New("invocation timeout")
	ErrCanceled    = errors.New("invocation canceled")
	ErrShutdown    = errors.New("bridge is shutting down")
)

// ErrorKind names an entry of the error taxonomy.
type ErrorKind string

const (
	LoadError        ErrorKind = "load"
	MemberReadError  ErrorKind = "member_read"
	CoercionError    ErrorKind = "coercion"
	InvocationError  ErrorKind = "invocation"
	NotFoundError    ErrorKind = "not_found"
	OverlayLoadError ErrorKind = "overlay_load"
	TimeoutError     ErrorKind = "timeout"
	CanceledError    ErrorKind = "canceled"
	ShutdownError    ErrorKind = "shutdown"
)

var kindSentinels = map[ErrorKind]error{
	LoadError:        ErrLoad,
	MemberReadError:  ErrMemberRead,
	CoercionError:    ErrCoercion,
	InvocationError:  ErrInvocation,
	NotFoundError:    ErrNotFound,
	OverlayLoadError: ErrOverlayLoad,
	TimeoutError:     ErrTimeout,
	CanceledError:    ErrCanceled,
	ShutdownError:    ErrShutdown,
}

// Error is the structured, machine-readable error value produced by every
// component. Tool, Param, Root and Path are set when they apply.
type Error struct {
	Kind    ErrorKind
	Tool    string
	Param   string
	Root    string
	Path    string
	Message string
	Err     error // underlying cause, never shown in JSON
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	switch {
	case e.Tool != "" && e.Param != "":
		msg += fmt.Sprintf(" %s(%s)", e.Tool, e.Param)
	case e.Tool != "":
		msg += " " + e.Tool
	case e.Root != "":
		msg += " " + e.Root
	case e.Path != "":
		msg += " " + e.Path
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of e.Kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// MarshalJSON emits the fields a caller may act on; the cause stays internal.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    ErrorKind `json:"kind"`
		Tool    string    `json:"tool,omitempty"`
		Param   string    `json:"param,omitempty"`
		Root    string    `json:"root,omitempty"`
		Path    string    `json:"path,omitempty"`
		Message string    `json:"message"`
	}{e.Kind, e.Tool, e.Param, e.Root, e.Path, e.Message})
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsClientError reports whether err was caused by the caller's input (unknown
// tool or bad argument) and can be corrected by retrying with a different call.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case CoercionError, NotFoundError:
		return true
	}
	return false
}

// asError converts any error returned while invoking tool into an *Error.
// Existing *Error values keep their kind and get the tool id filled in.
func asError(tool string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Tool == "" {
			cp := *e
			cp.Tool = tool
			return &cp
		}
		return e
	}
	return &Error{Kind: InvocationError, Tool: tool, Message: err.Error(), Err: err}
}

// panicError wraps a recovered panic value.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
