// Package errors defines the failure taxonomy of a search run. Every failure
// aborts the run; the code tells the caller which stage gave up.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an Error.
type Code string

// Error codes.
const (
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodeDataPartition Code = "DATA_PARTITION_ERROR"
	CodeEvaluation    Code = "EVALUATION_ERROR"
	CodeTraining      Code = "TRAINING_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
)

// Sentinels for errors.Is. They match any Error carrying the same code.
var (
	ErrConfiguration = &Error{Code: CodeConfiguration}
	ErrDataPartition = &Error{Code: CodeDataPartition}
	ErrEvaluation    = &Error{Code: CodeEvaluation}
	ErrTraining      = &Error{Code: CodeTraining}
)

// Error represents a structured search error.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a sentinel with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Message == "" && t.Cause == nil && t.Code == e.Code
}

// New creates a new Error.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps err with a code and additional context. A nil err stays nil.
func Wrap(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// GetCode returns the code of the outermost Error in err's chain, or
// CodeInternal when there is none.
func GetCode(err error) Code {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}

	return CodeInternal
}

// Configuration reports an invalid setting detected before any trial runs.
func Configuration(format string, args ...any) *Error {
	return New(CodeConfiguration, format, args...)
}

// DataPartition reports a dataset that cannot be split into the requested folds.
func DataPartition(format string, args ...any) *Error {
	return New(CodeDataPartition, format, args...)
}

// Evaluation reports a metric that is undefined for the given predictions.
func Evaluation(format string, args ...any) *Error {
	return New(CodeEvaluation, format, args...)
}

// Training reports a failed fit, transform or prediction.
func Training(format string, args ...any) *Error {
	return New(CodeTraining, format, args...)
}
