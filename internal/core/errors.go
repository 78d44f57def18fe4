package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies a failed execution.
type Kind int

const (
	KindPrecondition Kind = iota + 1
	KindConfiguration
	KindBinding
	KindTransformation
	KindUnderDelivery
	KindExecution
)

var (
	ErrPrecondition   = errors.New("precondition failure")
	ErrConfiguration  = errors.New("configuration failure")
	ErrBinding        = errors.New("binding failure")
	ErrTransformation = errors.New("transformation failure")
	ErrUnderDelivery  = errors.New("under-delivery failure")
	ErrExecution      = errors.New("execution failure")

	// ErrUnknownKey is returned by resolvers that have no mapping for a procedure key.
	ErrUnknownKey = errors.New("unknown procedure key")
)

func (k Kind) sentinel() error {
	switch k {
	case KindPrecondition:
		return ErrPrecondition
	case KindConfiguration:
		return ErrConfiguration
	case KindBinding:
		return ErrBinding
	case KindTransformation:
		return ErrTransformation
	case KindUnderDelivery:
		return ErrUnderDelivery
	case KindExecution:
		return ErrExecution
	}
	return nil
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single terminal error returned by an execution. Query and Member
// are snapshots of the execution context at the moment of failure.
type Error struct {
	Kind   Kind
	Type   string
	Msg    string
	Query  string
	Member string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Type != "" {
		b.WriteString(". Type: ")
		b.WriteString(e.Type)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ". Cause: %T: %s", errors.Cause(e.Err), e.Err.Error())
	}
	if e.Query != "" {
		b.WriteString(". Query: ")
		b.WriteString(e.Query)
	}
	if e.Member != "" {
		b.WriteString(". Member: ")
		b.WriteString(e.Member)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func newError(kind Kind, ec *execContext, typ, format string, args ...any) *Error {
	e := &Error{
		Kind: kind,
		Type: typ,
		Msg:  fmt.Sprintf(format, args...),
	}
	if ec != nil {
		e.Query, e.Member = ec.snapshot()
	}
	return e
}

func wrapError(kind Kind, ec *execContext, err error, typ, format string, args ...any) *Error {
	e := newError(kind, ec, typ, format, args...)
	e.Err = err
	return e
}

// asEngineError keeps an already classified error intact and classifies anything
// else with the given kind.
func asEngineError(kind Kind, ec *execContext, err error, typ, format string, args ...any) error {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr
	}
	return wrapError(kind, ec, err, typ, format, args...)
}
