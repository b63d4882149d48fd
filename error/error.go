// Package error defines the error kinds that cross the DAP boundary
// (spec §7). Each kind carries a stable numeric code and a
// human-readable message, the same way the teacher's error package
// kept a flat block of sentinel errors, just with a Coded wrapper so
// callers can still errors.Is/errors.As against a kind.
package error

import (
	"errors"
	"fmt"
)

// Kind is one of the seven boundary error kinds named in spec §7.
type Kind int

const (
	ProtocolError Kind = iota + 1
	StateError
	StaleReference
	EvalCompileError
	EvalRuntimeError
	InterpreterDetached
	NotSupported
)

// code is the stable numeric code surfaced in a DAP ErrorMessage.Id.
func (k Kind) code() int {
	switch k {
	case ProtocolError:
		return 1000
	case StateError:
		return 1001
	case StaleReference:
		return 1002
	case EvalCompileError:
		return 1003
	case EvalRuntimeError:
		return 1004
	case InterpreterDetached:
		return 1005
	case NotSupported:
		return 1006
	default:
		return 1099
	}
}

func (k Kind) String() string {
	switch k {
	case ProtocolError:
		return "ProtocolError"
	case StateError:
		return "StateError"
	case StaleReference:
		return "StaleReference"
	case EvalCompileError:
		return "EvalCompileError"
	case EvalRuntimeError:
		return "EvalRuntimeError"
	case InterpreterDetached:
		return "InterpreterDetached"
	case NotSupported:
		return "NotSupported"
	default:
		return "UnknownError"
	}
}

// Coded is a boundary error: a Kind, a stable code and a message.
// Handlers never panic (spec §7); any internal fault that isn't one
// of these kinds is wrapped as a ProtocolError by AsCoded when the
// root server builds the error response.
type Coded struct {
	Kind    Kind
	Code    int
	Message string
	Field   string // set for malformed-argument ProtocolErrors, names the offending field
}

func (e *Coded) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %q)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds a Coded error of the given kind.
func New(kind Kind, message string) *Coded {
	return &Coded{Kind: kind, Code: kind.code(), Message: message}
}

// Newf is New with Printf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) *Coded {
	return New(kind, fmt.Sprintf(format, args...))
}

// BadField builds a ProtocolError naming the offending request field.
func BadField(field, message string) *Coded {
	return &Coded{Kind: ProtocolError, Code: ProtocolError.code(), Message: message, Field: field}
}

// AsCoded unwraps err into a *Coded, wrapping it as a ProtocolError if
// it isn't already one of the boundary kinds.
func AsCoded(err error) *Coded {
	if err == nil {
		return nil
	}
	var c *Coded
	if errors.As(err, &c) {
		return c
	}
	return New(ProtocolError, err.Error())
}

// Sentinel errors kept for cases with no request/response context,
// mirrored from the teacher's flat error block.
var (
	ErrSessionClosed     = errors.New("session is closed")
	ErrInterpreterAbsent = errors.New("no interpreter attached")
	ErrEpochMismatch     = errors.New("pause epoch mismatch")
)
