// Package errdefs defines the error categories surfaced by the daemon core.
// Every failure that crosses a package boundary is wrapped in an *Error
// carrying one of the kinds below, so callers can branch on category with
// errors.As/Is instead of string matching.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind is the failure category of a core error.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindNameConflict    Kind = "NameConflict"
	KindUnsupported     Kind = "Unsupported"
	KindBootstrapFailed Kind = "BootstrapFailed"
	KindPasswordFailed  Kind = "PasswordFailed"
	KindNetworkFailed   Kind = "NetworkFailed"
	KindSSHFailed       Kind = "SshFailed"
	KindWireGuardFailed Kind = "WireGuardFailed"
	KindUnitFailed      Kind = "UnitFailed"
	KindStartFailed     Kind = "StartFailed"
	KindStopFailed      Kind = "StopFailed"
	KindDeleteFailed    Kind = "DeleteFailed"
	KindRuleConflict    Kind = "RuleConflict"
	KindTimeout         Kind = "Timeout"
	KindHostError       Kind = "HostError"
	KindNotFound        Kind = "NotFound"
)

// Error is a categorized error with an optional pipeline stage and cause.
type Error struct {
	Kind  Kind
	Stage string
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	var b []byte
	if e.Stage != "" {
		b = fmt.Appendf(b, "%s: ", e.Stage)
	}
	b = append(b, e.Msg...)
	if e.Cause != nil {
		b = fmt.Appendf(b, ": %v", e.Cause)
	}
	return string(b)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and stage to an underlying cause.
func Wrap(kind Kind, stage string, cause error, msg string) *Error {
	return &Error{Kind: kind, Stage: stage, Msg: msg, Cause: cause}
}

// KindOf extracts the kind of err, or "" if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StageOf extracts the pipeline stage recorded on err, if any.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

func is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether err refers to an unknown container or rule.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsConflict reports whether err is a name or rule conflict.
func IsConflict(err error) bool {
	return is(err, KindNameConflict) || is(err, KindRuleConflict)
}

// IsTimeout reports whether err is an external command deadline.
func IsTimeout(err error) bool { return is(err, KindTimeout) }

// IsValidation reports whether err is a spec validation failure.
func IsValidation(err error) bool { return is(err, KindValidation) }
