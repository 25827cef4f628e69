// Package engineerr defines the typed error kinds of spec.md §7 for
// the engine package's four public entry points. Every error carries
// an explicit Parameter field identifying which argument failed
// validation, replacing the source's ArgError(NUM1<->NUM2) position
// remapping (the mechanism layer's parameter order is the inverse of
// the public API's, so the source shuffles two numeric slots at the
// boundary; here the boundary just names the parameter once).
package engineerr

import "github.com/pkg/errors"

// Kind is one of spec.md §7's error kinds.
type Kind int

const (
	KindNone Kind = iota
	KindBadData
	KindUnderflow
	KindNotAvail
	KindWrongKey
	KindSignatureError
	KindOverflow
	KindPermission
	KindArgError
	KindNotInited
	KindComplete
	KindMemory
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindBadData:
		return "BadData"
	case KindUnderflow:
		return "Underflow"
	case KindNotAvail:
		return "NotAvail"
	case KindWrongKey:
		return "WrongKey"
	case KindSignatureError:
		return "SignatureError"
	case KindOverflow:
		return "Overflow"
	case KindPermission:
		return "Permission"
	case KindArgError:
		return "ArgError"
	case KindNotInited:
		return "NotInited"
	case KindComplete:
		return "Complete"
	case KindMemory:
		return "Memory"
	case KindFailed:
		return "Failed"
	default:
		return "None"
	}
}

// Error is the typed error every engine entry point returns. Parameter
// names the offending argument for KindArgError; it's empty for kinds
// that aren't parameter-specific.
type Error struct {
	Kind      Kind
	Parameter string
	Op        string // e.g. "ExportKey", "CheckSignature"
	cause     error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Parameter != "" {
		msg += " (parameter: " + e.Parameter + ")"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a parameter-less Error of the given kind.
func New(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

// Arg builds a KindArgError Error naming the offending parameter,
// per spec.md §7's ArgError(position) — the position here is always
// the public API's own parameter name, not a remapped mechanism-layer
// slot.
func Arg(op, parameter string) *Error {
	return &Error{Op: op, Kind: KindArgError, Parameter: parameter}
}

// Wrap attaches cause to a typed Error of the given kind, using
// github.com/pkg/errors so callers can still errors.Cause() down to
// the originating codec error.
func Wrap(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, cause: errors.WithStack(cause)}
}

// FromCompareFailed translates a cryptoctx.ErrCompareFailed-shaped
// generic comparison mismatch to WrongKey, per spec.md §7's
// propagation policy ("CompareFailed is translated to WrongKey at the
// codec boundary").
func FromCompareFailed(op string, cause error) *Error {
	return Wrap(op, KindWrongKey, cause)
}
