package portal

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the closed set of automation failure classes
type ErrorKind string

const (
	KindLogin              ErrorKind = "login"
	KindRobotDetection     ErrorKind = "robot_detection"
	KindSalonSelection     ErrorKind = "salon_selection"
	KindElementNotFound    ErrorKind = "element_not_found"
	KindUpload             ErrorKind = "upload"
	KindGenericPublication ErrorKind = "generic_publication"
)

// Sentinels for errors.Is matching by kind
var (
	ErrLogin              = &AutomationError{Kind: KindLogin}
	ErrRobotDetection     = &AutomationError{Kind: KindRobotDetection}
	ErrSalonSelection     = &AutomationError{Kind: KindSalonSelection}
	ErrElementNotFound    = &AutomationError{Kind: KindElementNotFound}
	ErrUpload             = &AutomationError{Kind: KindUpload}
	ErrGenericPublication = &AutomationError{Kind: KindGenericPublication}
)

// AutomationError is the only error type the portal client returns
type AutomationError struct {
	Kind           ErrorKind
	Stage          Stage
	Message        string
	LastURL        string
	ScreenshotPath string
	// Committed is set once the commit control has been clicked; the post may be live.
	Committed bool
	Cause     error
}

func (e *AutomationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.LastURL != "" {
		msg += fmt.Sprintf(" (url: %s)", e.LastURL)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *AutomationError) Unwrap() error {
	return e.Cause
}

// Is matches any AutomationError of the same kind
func (e *AutomationError) Is(target error) bool {
	t, ok := target.(*AutomationError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether another attempt may help
func (e *AutomationError) Retryable() bool {
	if e.Committed {
		return false
	}
	return e.Kind != KindRobotDetection
}

// AlertsOperators is true when the failure points at selector catalogue drift
func (e *AutomationError) AlertsOperators() bool {
	return e.Kind == KindElementNotFound
}

// ManualReview is true when a human has to look before anything else happens
func (e *AutomationError) ManualReview() bool {
	return e.Kind == KindRobotDetection || e.Committed
}

func newError(kind ErrorKind, message string, cause error) *AutomationError {
	return &AutomationError{Kind: kind, Message: message, Cause: cause}
}

func LoginError(message string, cause error) *AutomationError {
	return newError(KindLogin, message, cause)
}

func RobotDetectionError(message string) *AutomationError {
	return newError(KindRobotDetection, message, nil)
}

func SalonSelectionError(message string) *AutomationError {
	return newError(KindSalonSelection, message, nil)
}

func ElementNotFoundError(message, lastURL string, cause error) *AutomationError {
	e := newError(KindElementNotFound, message, cause)
	e.LastURL = lastURL
	return e
}

func UploadError(message string, cause error) *AutomationError {
	return newError(KindUpload, message, cause)
}

func GenericPublicationError(message string, cause error) *AutomationError {
	return newError(KindGenericPublication, message, cause)
}

// AsAutomationError converts any error into an AutomationError; unknown errors become generic ones
func AsAutomationError(err error) *AutomationError {
	if err == nil {
		return nil
	}
	var ae *AutomationError
	if errors.As(err, &ae) {
		return ae
	}
	return GenericPublicationError("unexpected failure", err)
}

// KindOf returns the kind of err, treating foreign errors as generic publication failures
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return AsAutomationError(err).Kind
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
