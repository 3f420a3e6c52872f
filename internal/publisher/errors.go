// internal/publisher/errors.go
package publisher

import (
	"errors"
	"fmt"
)

// ErrorKind classifies workflow failures for callers that map them onto
// their own surface, such as HTTP status codes or exit codes.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindSelection      ErrorKind = "selection"
	KindSubmission     ErrorKind = "submission"
	KindInternal       ErrorKind = "internal"
)

type kinded interface {
	Kind() ErrorKind
}

// KindOf returns the kind of err, or "" for nil. Errors that carry no kind
// are internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// ValidationError reports input rejected before any browser work.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// AuthStep names a step of the login sequence.
type AuthStep string

const (
	StepNavigate        AuthStep = "navigate"
	StepOpenMenu        AuthStep = "open_menu"
	StepChooseEntryMode AuthStep = "choose_entry_mode"
	StepFillIdentity    AuthStep = "fill_identity"
	StepFillSecret      AuthStep = "fill_secret"
	StepSubmit          AuthStep = "submit"
	StepConfirm         AuthStep = "confirm_dashboard"
)

// AuthReason says why a login step failed.
type AuthReason string

const (
	ReasonElementNotFound  AuthReason = "element_not_found"
	ReasonPlatformRejected AuthReason = "platform_rejected"
	ReasonTimeout          AuthReason = "timeout"
	ReasonNavigation       AuthReason = "navigation_failed"
)

// AuthError reports that login did not reach a confirmed dashboard.
type AuthError struct {
	Step   AuthStep
	State  LoginState
	Reason AuthReason
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authentication failed at step %s (%s)", e.Step, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *AuthError) Unwrap() error   { return e.Err }
func (e *AuthError) Kind() ErrorKind { return KindAuthentication }

// SelectionError reports that the requested work could not be opened.
type SelectionError struct {
	TargetID string
	Tried    []string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("target work %q could not be reached (tried %v)", e.TargetID, e.Tried)
}

func (e *SelectionError) Kind() ErrorKind { return KindSelection }

// SubmissionError reports that the content could not be entered, or that
// the platform explicitly refused it.
type SubmissionError struct {
	Step   string
	Detail string
	Err    error
}

func (e *SubmissionError) Error() string {
	msg := "submission failed at " + e.Step
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmissionError) Unwrap() error   { return e.Err }
func (e *SubmissionError) Kind() ErrorKind { return KindSubmission }

// InternalError wraps failures outside the platform's control: the browser
// would not start, a stage panicked, the operation deadline passed.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string   { return fmt.Sprintf("internal error during %s: %v", e.Op, e.Err) }
func (e *InternalError) Unwrap() error   { return e.Err }
func (e *InternalError) Kind() ErrorKind { return KindInternal }
