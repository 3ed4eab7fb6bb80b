// Package errors defines the typed failures surfaced by the dedup and merge engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// NotFoundError is returned when a record, rule or merge log is absent or outside the tenant
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
}

func (e *NotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error()).AddMetaValue("resource", e.Resource).AddMetaValue("id", e.ID)
}

// InvalidOperationError is returned when a request can never succeed, such as merging a record with itself
type InvalidOperationError struct {
	Operation string
	Message   string
}

func NewInvalidOperationError(operation, format string, args ...any) *InvalidOperationError {
	return &InvalidOperationError{Operation: operation, Message: fmt.Sprintf(format, args...)}
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Operation, e.Message)
}

func (e *InvalidOperationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("operation", e.Operation)
}

// InvalidStateError is returned when an entity is not in the state an operation requires
type InvalidStateError struct {
	Resource string
	ID       string
	State    string
	Message  string
}

func NewInvalidStateError(resource, id, state, message string) *InvalidStateError {
	return &InvalidStateError{Resource: resource, ID: id, State: state, Message: message}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s '%s' is %s: %s", e.Resource, e.ID, e.State, e.Message)
}

func (e *InvalidStateError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("resource", e.Resource).AddMetaValue("state", e.State)
}

// AlreadyMergedError is returned when a record already takes part in an active merge
type AlreadyMergedError struct {
	RecordID   string
	MergeLogID string
}

func NewAlreadyMergedError(recordID, mergeLogID string) *AlreadyMergedError {
	return &AlreadyMergedError{RecordID: recordID, MergeLogID: mergeLogID}
}

func (e *AlreadyMergedError) Error() string {
	if e.MergeLogID == "" {
		return fmt.Sprintf("record '%s' already participates in an active merge", e.RecordID)
	}
	return fmt.Sprintf("record '%s' already participates in active merge '%s'", e.RecordID, e.MergeLogID)
}

func (e *AlreadyMergedError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("record_id", e.RecordID)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsInvalidOperation(err error) bool {
	var target *InvalidOperationError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

func IsAlreadyMerged(err error) bool {
	var target *AlreadyMergedError
	return errors.As(err, &target)
}

type httpConvertible interface {
	ToHTTPError() *httperror.HTTPError
}

// ToHTTPError maps any engine error onto an HTTP error, defaulting to 500.
func ToHTTPError(err error) *httperror.HTTPError {
	if err == nil {
		return nil
	}
	var typed httpConvertible
	if errors.As(err, &typed) {
		return typed.ToHTTPError()
	}
	if httperror.IsHTTPError(err) {
		return httperror.ToHTTPError(err)
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
}
