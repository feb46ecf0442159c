// Package apperr defines the stable error-kind taxonomy shared across the
// block store, workspace, agent runner, and HTTP surface, and the mapping
// from each kind to an HTTP status code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable, discriminant error code surfaced to callers.
type Kind string

const (
	UserNotFound        Kind = "UserNotFound"
	BlockNotFound       Kind = "BlockNotFound"
	VersionNotFound     Kind = "VersionNotFound"
	DiffNotFound        Kind = "DiffNotFound"
	TaskNotFound        Kind = "TaskNotFound"
	TaskRunNotFound     Kind = "TaskRunNotFound"
	InvalidPath         Kind = "InvalidPath"
	FileTooLarge        Kind = "FileTooLarge"
	InvalidInput        Kind = "InvalidInput"
	DuplicateEdit       Kind = "DuplicateEdit"
	ProposalConflict    Kind = "ProposalConflict"
	ProposalStale       Kind = "ProposalStale"
	ProviderUnavailable Kind = "ProviderUnavailable"
	Internal            Kind = "Internal"
)

// statusByKind is the fixed kind-to-HTTP-status mapping from spec §7.
var statusByKind = map[Kind]int{
	UserNotFound:        http.StatusNotFound,
	BlockNotFound:       http.StatusNotFound,
	VersionNotFound:     http.StatusNotFound,
	DiffNotFound:        http.StatusNotFound,
	TaskNotFound:        http.StatusNotFound,
	TaskRunNotFound:     http.StatusNotFound,
	InvalidPath:         http.StatusBadRequest,
	FileTooLarge:        http.StatusBadRequest,
	InvalidInput:        http.StatusBadRequest,
	DuplicateEdit:       http.StatusBadRequest,
	ProposalConflict:    http.StatusConflict,
	ProposalStale:       http.StatusConflict,
	ProviderUnavailable: http.StatusServiceUnavailable,
	Internal:            http.StatusInternalServerError,
}

// Error is a typed application error carrying a stable Kind plus a
// human-readable detail message.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an *Error of the given kind around an underlying error.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// HTTPStatus returns the status code for an error, walking wrapped errors to
// find an *Error; unrecognized errors map to 500.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		if status, ok := statusByKind[appErr.Kind]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// KindOf extracts the Kind from err, defaulting to Internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}
