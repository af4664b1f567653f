// Package apperr defines the error taxonomy shared by the engines and the
// HTTP layer. Callers classify with errors.As / the Is* helpers instead of
// matching message text.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed input, such as missing required invoice
// fields. Surfaced immediately to the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Msg)
}

// Validation builds a ValidationError from a format string.
func Validation(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown workflow, request, invoice, customer or
// approver.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// StateConflictError reports an action submitted against a terminal or
// already-advanced request. Clients should retry with a refreshed view.
type StateConflictError struct {
	RequestID string
	Status    string
	Msg       string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("state conflict on request %s (status %s): %s", e.RequestID, e.Status, e.Msg)
}

// StateConflict builds a StateConflictError.
func StateConflict(requestID, status, format string, args ...interface{}) error {
	return &StateConflictError{RequestID: requestID, Status: status, Msg: fmt.Sprintf(format, args...)}
}

// RuleEvaluationError reports a compliance/fraud rule with malformed
// parameters. The affected check degrades to skipped/neutral rather than
// aborting the submission; the degradation is recorded in the audit trail.
type RuleEvaluationError struct {
	RuleID string
	Err    error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("rule %s evaluation failed: %v", e.RuleID, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error { return e.Err }

// RuleEvaluation builds a RuleEvaluationError wrapping err.
func RuleEvaluation(ruleID string, err error) error {
	return &RuleEvaluationError{RuleID: ruleID, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsStateConflict reports whether err is a StateConflictError.
func IsStateConflict(err error) bool {
	var sce *StateConflictError
	return errors.As(err, &sce)
}
