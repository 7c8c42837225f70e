// Package sshderr defines the kinds of failure reported by sshdconf operations.
//
// Each operation returns an *Error carrying its Kind. Callers match a kind with errors.Is,
// through any amount of wrapping:
//
//	if errors.Is(err, sshderr.SyntaxValidation) { ... }
//
// The command line maps each kind to a distinct exit code.
package sshderr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Kind classifies a failure.
type Kind int

// Failure kinds.
const (
	Unknown Kind = iota
	ConfigNotFound
	InvalidValue
	UnknownIdentity
	BackupIO
	BackupNotFound
	SyntaxValidation
	Permission
	ServiceControl
)

// Exit codes. 1 is a generic failure and 2 a usage error.
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
)

var kindNames = map[Kind]string{
	Unknown:          "unknown error",
	ConfigNotFound:   "configuration not found",
	InvalidValue:     "invalid value",
	UnknownIdentity:  "unknown identity",
	BackupIO:         "backup failure",
	BackupNotFound:   "backup not found",
	SyntaxValidation: "syntax validation failed",
	Permission:       "permission denied",
	ServiceControl:   "service control failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error makes a bare Kind usable as an errors.Is target.
func (k Kind) Error() string {
	return k.String()
}

// ExitCode returns the process exit code associated with the kind.
func (k Kind) ExitCode() int {
	if k == Unknown {
		return ExitGeneralError
	}
	return int(k) + ExitUsageError
}

// Error is a failure of a given kind.
type Error struct {
	Kind Kind
	// Op is the operation which failed, e.g. "snapshot".
	Op string
	// Path is the file involved, if any.
	Path string
	// Detail is a human readable explanation, e.g. a validation reason or checker output.
	Detail string
	Err    error

	// Directive, Value and Reason describe a refused setting for InvalidValue errors.
	Directive string
	Value     string
	Reason    string
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	msg := e.Detail
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(parts) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %s", strings.Join(parts, " "), msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare Kind target against the kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an error of kind k without underlying cause.
func New(k Kind, op, path, detail string) *Error {
	return &Error{Kind: k, Op: op, Path: path, Detail: detail}
}

// Wrap returns an error of kind k around err. A nil err gives a nil error.
func Wrap(k Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Op: op, Path: path, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// ExitCode returns the process exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return KindOf(err).ExitCode()
}

// InvalidValueError reports a directive value refused by a validation rule.
func InvalidValueError(name, value, reason string) *Error {
	return &Error{
		Kind:      InvalidValue,
		Op:        "validate",
		Detail:    gotext.Get("invalid value %q for %s: %s", value, name, reason),
		Directive: name,
		Value:     value,
		Reason:    reason,
	}
}

// IdentityKind is the namespace an identity was looked up in.
type IdentityKind string

// Identity namespaces.
const (
	UserIdentity  IdentityKind = "user"
	GroupIdentity IdentityKind = "group"
)

// UnknownIdentityError reports a user or group which does not exist on the host.
func UnknownIdentityError(kind IdentityKind, name string, err error) *Error {
	return &Error{
		Kind:   UnknownIdentity,
		Op:     "validate",
		Detail: gotext.Get("%s %q does not exist", kind, name),
		Err:    err,
	}
}
