package errors

import (
	"errors"
	"fmt"
)

// Op is a builder argument naming the failing operation.
type Op string

// Component is a builder argument naming the failing component.
type Component string

// E builds a TrackError from a loosely typed argument list:
// Op, Component, Kind, ErrorCode, error and string (appended as a "detail" metadata entry).
// Unknown argument types are reported in the error message rather than panicking.
func E(args ...interface{}) error {
	e := &TrackError{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = Operation(a)
		case Operation:
			e.Op = a
		case Component:
			e.Component = string(a)
		case Kind:
			e.Kind = a
		case ErrorCode:
			e.Code = a
		case *TrackError:
			if e.Code == "" {
				e.Code = a.Code
			}
			if e.Kind == "" {
				e.Kind = a.Kind
			}
			e.Retryable = a.Retryable
			e.Err = a
		case error:
			e.Err = a
		case string:
			e.WithMetadata("detail", a)
		default:
			e.WithMetadata("unknown_arg", fmt.Sprintf("%T", arg))
		}
	}
	if e.Err == nil {
		e.Err = errors.New("unknown error")
	}
	return e
}

// WrapOpComponent wraps errors with consistent Op and Component propagation.
// If err is nil, returns nil.
func WrapOpComponent(err error, op, component string) error {
	if err == nil {
		return nil
	}
	return E(Op(op), Component(component), err)
}

// WrapOpComponentKind wraps errors with Op, Component, and Kind.
// If err is nil, returns nil.
func WrapOpComponentKind(err error, op, component string, kind Kind) error {
	if err == nil {
		return nil
	}
	return E(Op(op), Component(component), kind, err)
}
