package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies how a pipeline invocation failed
type Kind string

const (
	// KindEnvironment - the browser or its driver could not start
	KindEnvironment Kind = "EnvironmentError"
	// KindTokenInvalid - a restored session failed verification
	KindTokenInvalid Kind = "TokenInvalid"
	// KindLoginFailed - interactive login never reached an authenticated page
	KindLoginFailed Kind = "LoginFailed"
	// KindStepTimeout - a generation or download step missed its postcondition
	KindStepTimeout Kind = "StepTimeout"
	// KindOptionNotFound - a preferred settings option was absent
	KindOptionNotFound Kind = "OptionNotFound"
	// KindDownloadTimeout - no finished video file appeared in time
	KindDownloadTimeout Kind = "DownloadTimeout"
	// KindValidation - local checks rejected the artifact or its metadata
	KindValidation Kind = "ValidationError"
	// KindUploadFailed - the upload collaborator reported failure
	KindUploadFailed Kind = "UploadFailed"
	// KindUnknownTask - no pending record for the task id
	KindUnknownTask Kind = "UnknownTask"
	// KindBusy - the task is already running or no worker is free
	KindBusy Kind = "Busy"
	// KindInternal - an unclassified error reached the pipeline boundary
	KindInternal Kind = "Internal"
)

// Terminal reports whether the kind ends an invocation
func (k Kind) Terminal() bool {
	switch k {
	case KindTokenInvalid, KindOptionNotFound:
		return false
	}
	return true
}

// Error is a classified pipeline error
type Error struct {
	Kind     Kind
	Step     string // step name, empty outside the browser flows
	Location string // last known page URL
	Hint     string // user-facing remediation
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Step != "" {
		fmt.Fprintf(&b, " [%s]", e.Step)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Location != "" {
		fmt.Fprintf(&b, " (at %s)", e.Location)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind. A nil err gets the kind name as message.
func New(kind Kind, err error) *Error {
	if err == nil {
		err = errors.New(strings.ToLower(string(kind)))
	}
	return &Error{Kind: kind, Err: err}
}

// Newf formats a message and wraps it with a kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// AtStep sets the step and location.
func (e *Error) AtStep(step, location string) *Error {
	e.Step = step
	e.Location = location
	return e
}

// WithHint sets a remediation hint.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

func Environment(err error) *Error { return New(KindEnvironment, err) }

func TokenInvalid(err error) *Error { return New(KindTokenInvalid, err) }

func LoginFailed(step, location string, err error) *Error {
	return New(KindLoginFailed, err).AtStep(step, location).
		WithHint("check the editor account credentials and approve the MFA prompt on your device")
}

func StepTimeout(step, location string, err error) *Error {
	return New(KindStepTimeout, err).AtStep(step, location)
}

func OptionNotFound(group, option string) *Error {
	return Newf(KindOptionNotFound, "option %q not found in group %q", option, group)
}

func DownloadTimeout(dir string, err error) *Error {
	return New(KindDownloadTimeout, fmt.Errorf("no finished video in %s: %w", dir, err))
}

func Validation(err error) *Error { return New(KindValidation, err) }

func UploadFailed(err error) *Error {
	return New(KindUploadFailed, err).
		WithHint("the YouTube authorization may have expired; re-authorize and retry")
}

func UnknownTask(taskID string) *Error {
	return Newf(KindUnknownTask, "no pending task with id %q", taskID).
		WithHint("run /generate_tip first, then confirm with the id it returns")
}

func Busy(format string, args ...any) *Error { return Newf(KindBusy, format, args...) }

// As returns the classified error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for unclassified errors and ""
// for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Classify guarantees a classified error. Errors already carrying a kind pass
// through; context deadlines become fallback-kind step errors.
func Classify(err error, fallback Kind, step, location string) *Error {
	if err == nil {
		return nil
	}
	if fe, ok := As(err); ok {
		if fe.Step == "" && step != "" {
			fe.Step = step
		}
		if fe.Location == "" {
			fe.Location = location
		}
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) && fallback == KindInternal {
		fallback = KindStepTimeout
	}
	return New(fallback, err).AtStep(step, location)
}
