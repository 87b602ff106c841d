// Package errors provides error handling for semcluster.
//
// It re-exports github.com/cockroachdb/errors so every package gets stack
// traces, wrapping, and user-facing hints from one import, and it defines the
// failure taxonomy shared by the clustering pipeline and its outer surfaces:
//
//	ErrInvalidInput        request rejected at the boundary, core never ran
//	ErrCollaboratorFailure the vector source could not produce vectors
//	ErrComputationFailure  numeric failure inside the density model
//
// Wrap a sentinel to add context while keeping it matchable:
//
//	return errors.Wrapf(errors.ErrInvalidInput, "min_cluster_size %d exceeds item count %d", m, n)
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf   = crdb.AssertionFailedf
	IsAssertionFailure = crdb.IsAssertionFailure
)

// Failure taxonomy. Match with errors.Is after any amount of wrapping.
var (
	// ErrInvalidInput indicates the request violated a boundary rule
	ErrInvalidInput = New("invalid input")

	// ErrCollaboratorFailure indicates the vector source failed
	ErrCollaboratorFailure = New("collaborator failure")

	// ErrComputationFailure indicates a numeric failure inside the core
	ErrComputationFailure = New("computation failure")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")
)

// IsInvalidInput checks if an error is or wraps ErrInvalidInput
func IsInvalidInput(err error) bool {
	return err != nil && Is(err, ErrInvalidInput)
}

// IsCollaboratorFailure checks if an error is or wraps ErrCollaboratorFailure
func IsCollaboratorFailure(err error) bool {
	return err != nil && Is(err, ErrCollaboratorFailure)
}

// IsComputationFailure checks if an error is or wraps ErrComputationFailure
func IsComputationFailure(err error) bool {
	return err != nil && Is(err, ErrComputationFailure)
}

// NewInvalidInputError creates an invalid-input error with a formatted message.
func NewInvalidInputError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidInput, Newf(format, args...).Error())
}

// NewComputationError creates a computation failure naming the stage that failed.
func NewComputationError(stage string, format string, args ...interface{}) error {
	return Wrapf(ErrComputationFailure, "%s: %s", stage, Newf(format, args...).Error())
}

// WrapCollaborator marks err as a collaborator failure while keeping err in the chain.
func WrapCollaborator(err error, context string) error {
	if err == nil {
		return nil
	}
	return Wrap(Mark(err, ErrCollaboratorFailure), context)
}

// Kind returns a short machine-readable name for the taxonomy bucket of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsInvalidInput(err):
		return "invalid_input"
	case IsCollaboratorFailure(err):
		return "collaborator_failure"
	case IsComputationFailure(err):
		return "computation_failure"
	case Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
