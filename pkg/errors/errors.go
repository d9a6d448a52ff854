package errors

import (
	stdErrors "errors"
	"fmt"
)

// Code classifies engine failures. Every public engine operation fails with
// exactly one of these.
type Code string

const (
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodePaused              Code = "LEDGER_PAUSED"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeSupplyCapExceeded   Code = "SUPPLY_CAP_EXCEEDED"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeDependency          Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeUnauthorized: {
		Retryable:     false,
		PublicMessage: "caller lacks the required role",
	},
	CodePaused: {
		Retryable:     true,
		PublicMessage: "ledger is paused",
	},
	CodeInsufficientBalance: {
		Retryable:     false,
		PublicMessage: "insufficient balance",
	},
	CodeSupplyCapExceeded: {
		Retryable:     false,
		PublicMessage: "supply cap exceeded",
	},
	CodeInvalidArgument: {
		Retryable:     false,
		PublicMessage: "invalid argument",
	},
	CodeInvalidState: {
		Retryable:     false,
		PublicMessage: "state transition disallowed",
	},
	CodeInternal: {
		Retryable:     true,
		PublicMessage: "internal error",
	},
	CodeDependency: {
		Retryable:     true,
		PublicMessage: "dependency unavailable",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts a typed engine error from an error chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the engine code for err, defaulting to CodeInternal for
// untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}
